package server

import (
	"time"

	auditdomain "pmt/backend/internal/audit/domain"
	"pmt/backend/internal/platform/apperr"
	projectdomain "pmt/backend/internal/project/domain"
	taskdomain "pmt/backend/internal/task/domain"
	userdomain "pmt/backend/internal/user/domain"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

// User messages.

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

type GetUserRequest struct {
	UserID int64 `json:"user_id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Project messages.

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// StartDate is YYYY-MM-DD; empty for none.
	StartDate string `json:"start_date"`
}

type ProjectRequest struct {
	ProjectID int64 `json:"project_id"`
}

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"start_date,omitempty"`
	OwnerID     int64  `json:"owner_id"`
}

type ListProjectsResponse struct {
	Projects []Project `json:"projects"`
}

type AddMemberRequest struct {
	ProjectID int64  `json:"project_id"`
	Email     string `json:"email"`
}

type AssignRoleRequest struct {
	ProjectID int64  `json:"project_id"`
	MemberID  int64  `json:"member_id"`
	Role      string `json:"role"`
}

type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type MembersResponse struct {
	Members []Member `json:"members"`
}

// Task messages.

type CreateTaskRequest struct {
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority"`
	// CompletionDate is YYYY-MM-DD or null.
	CompletionDate *string `json:"completion_date"`
	AssigneeID     *int64  `json:"assignee_id"`
}

type AssignTaskRequest struct {
	ProjectID  int64 `json:"project_id"`
	TaskID     int64 `json:"task_id"`
	AssigneeID int64 `json:"assignee_id"`
}

// EditTaskRequest replaces the editable fields. Empty due_date, priority and status keep the current
// value; a null completion_date clears it.
type EditTaskRequest struct {
	ProjectID      int64   `json:"project_id"`
	TaskID         int64   `json:"task_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	DueDate        string  `json:"due_date"`
	CompletionDate *string `json:"completion_date"`
	Priority       string  `json:"priority"`
	Status         string  `json:"status"`
}

type ChangeStatusRequest struct {
	ProjectID int64  `json:"project_id"`
	TaskID    int64  `json:"task_id"`
	Status    string `json:"status"`
}

type TaskRequest struct {
	ProjectID int64 `json:"project_id"`
	TaskID    int64 `json:"task_id"`
}

type ListTasksByStatusRequest struct {
	ProjectID int64  `json:"project_id"`
	Status    string `json:"status"`
}

type ProjectSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Task struct {
	ID             int64          `json:"id"`
	ProjectID      int64          `json:"project_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	DueDate        string         `json:"due_date"`
	CompletionDate *string        `json:"completion_date"`
	Priority       string         `json:"priority"`
	Status         string         `json:"status"`
	Project        ProjectSummary `json:"project"`
	Assignee       *User          `json:"assignee,omitempty"`
}

type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

type Change struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	ChangedBy int64     `json:"changed_by"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
}

type HistoryResponse struct {
	Changes []Change `json:"changes"`
}

// parseDate parses a YYYY-MM-DD field. Empty input yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(auditdomain.DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation(field + " must be YYYY-MM-DD")
	}
	return d, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toUser(s userdomain.Summary) User {
	return User{ID: s.ID, Username: s.Username, Email: s.Email}
}

func toProject(p *projectdomain.Project) Project {
	out := Project{ID: p.ID, Name: p.Name, Description: p.Description, OwnerID: p.OwnerID}
	if !p.StartDate.IsZero() {
		out.StartDate = auditdomain.FormatDate(p.StartDate)
	}
	return out
}

func toMembers(ms []projectdomain.MemberSummary) []Member {
	out := make([]Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMember(m))
	}
	return out
}

func toMember(m projectdomain.MemberSummary) Member {
	return Member{UserID: m.UserID, Username: m.Username, Email: m.Email, Role: string(m.Role)}
}

func toTask(v *taskdomain.View) Task {
	out := Task{
		ID:          v.ID,
		ProjectID:   v.ProjectID,
		Name:        v.Name,
		Description: v.Description,
		DueDate:     auditdomain.FormatDate(v.DueDate),
		Priority:    string(v.Priority),
		Status:      string(v.Status),
		Project:     ProjectSummary{ID: v.Project.ID, Name: v.Project.Name, Description: v.Project.Description},
	}
	if v.CompletionDate != nil {
		d := auditdomain.FormatDate(*v.CompletionDate)
		out.CompletionDate = &d
	}
	if v.Assignee != nil {
		u := toUser(*v.Assignee)
		out.Assignee = &u
	}
	return out
}

func toTasks(views []*taskdomain.View) []Task {
	out := make([]Task, 0, len(views))
	for _, v := range views {
		out = append(out, toTask(v))
	}
	return out
}

func toChanges(records []*auditdomain.ChangeRecord) []Change {
	out := make([]Change, 0, len(records))
	for _, c := range records {
		out = append(out, Change{
			ID:        c.ID,
			TaskID:    c.TaskID,
			ChangedBy: c.ChangedBy,
			Field:     c.FieldName,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			ChangedAt: c.ChangedAt,
		})
	}
	return out
}
