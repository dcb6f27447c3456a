package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "pmt/backend/internal/audit/domain"
	"pmt/backend/internal/platform/apperr"
	projectdomain "pmt/backend/internal/project/domain"
	userdomain "pmt/backend/internal/user/domain"
)

// Status is a task's position in its lifecycle. Any status may follow any other.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus accepts only the canonical names. Anything else wraps apperr.ErrInvalidStatus.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, s)
	}
	return st, nil
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority accepts only the canonical names.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", apperr.Validation(fmt.Sprintf("unknown priority %q", s))
	}
	return p, nil
}

// Task is a unit of work inside one project. ProjectID never changes after creation.
type Task struct {
	ID             int64
	ProjectID      int64
	Name           string
	Description    string
	DueDate        time.Time
	CompletionDate *time.Time
	Priority       Priority
	Status         Status
	AssigneeID     *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Date truncates t to its calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate checks the fields required to persist a task.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name is required")
	}
	if t.DueDate.IsZero() {
		return errors.New("due date is required")
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletionDate != nil {
		d := *t.CompletionDate
		c.CompletionDate = &d
	}
	if t.AssigneeID != nil {
		a := *t.AssigneeID
		c.AssigneeID = &a
	}
	return &c
}

// Fields are the editable values of a task.
// A zero DueDate, an empty Priority or an empty Status keeps the current value; a nil CompletionDate clears it.
type Fields struct {
	Name           string
	Description    string
	DueDate        time.Time
	CompletionDate *time.Time
	Priority       Priority
	Status         Status
}

// Validate rejects an empty name, an unknown priority and an unknown status.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return apperr.Validation("name is required")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown priority %q", f.Priority))
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, f.Status)
	}
	return nil
}

// Apply writes f onto t, trimming the name as CreateTask does, and returns one FieldChange per field whose rendered value changed, in a fixed field order.
func (t *Task) Apply(f Fields) []auditdomain.FieldChange {
	var changes []auditdomain.FieldChange
	track := func(field, old, next string) bool {
		if old == next {
			return false
		}
		changes = append(changes, auditdomain.FieldChange{Field: field, Old: old, New: next})
		return true
	}

	if name := strings.TrimSpace(f.Name); track(auditdomain.FieldName, t.Name, name) {
		t.Name = name
	}
	if track(auditdomain.FieldDescription, t.Description, f.Description) {
		t.Description = f.Description
	}
	if !f.DueDate.IsZero() {
		due := Date(f.DueDate)
		if track(auditdomain.FieldDueDate, auditdomain.FormatDate(t.DueDate), auditdomain.FormatDate(due)) {
			t.DueDate = due
		}
	}
	var completion *time.Time
	if f.CompletionDate != nil {
		d := Date(*f.CompletionDate)
		completion = &d
	}
	if track(auditdomain.FieldCompletionDate, auditdomain.FormatOptionalDate(t.CompletionDate), auditdomain.FormatOptionalDate(completion)) {
		t.CompletionDate = completion
	}
	if f.Priority != "" && track(auditdomain.FieldPriority, string(t.Priority), string(f.Priority)) {
		t.Priority = f.Priority
	}
	if f.Status != "" && track(auditdomain.FieldStatus, string(t.Status), string(f.Status)) {
		t.Status = f.Status
	}
	return changes
}

// View is a task with the summaries callers display alongside it.
type View struct {
	Task
	Project  projectdomain.Summary
	Assignee *userdomain.Summary
}
