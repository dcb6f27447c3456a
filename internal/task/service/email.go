package service

import (
	"fmt"
	"strings"

	auditdomain "pmt/backend/internal/audit/domain"
	taskdomain "pmt/backend/internal/task/domain"
	userdomain "pmt/backend/internal/user/domain"
)

// assignmentEmail renders the message sent to a new assignee.
func assignmentEmail(t *taskdomain.Task, assignee *userdomain.User) (subject, body string) {
	subject = "New task assigned: " + t.Name
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", assignee.Username)
	fmt.Fprintf(&b, "You have been assigned to the task: %s\n", t.Name)
	fmt.Fprintf(&b, "Description: %s\n", t.Description)
	fmt.Fprintf(&b, "Due date: %s\n\n", auditdomain.FormatDate(t.DueDate))
	b.WriteString("Regards,\nThe project management team\n")
	return subject, b.String()
}
