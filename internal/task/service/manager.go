// Package service implements the task lifecycle: every mutation passes the project role gate,
// runs in one transaction with its change records, and notifies an assignee after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pmt/backend/internal/audit"
	auditdomain "pmt/backend/internal/audit/domain"
	"pmt/backend/internal/notification"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/platform/rbac"
	projectdomain "pmt/backend/internal/project/domain"
	"pmt/backend/internal/store"
	taskdomain "pmt/backend/internal/task/domain"
	userdomain "pmt/backend/internal/user/domain"
)

const tracerName = "pmt/backend/internal/task/service"

// Manager implements the task operations.
type Manager struct {
	store    store.Store
	gate     *rbac.Gate
	recorder *audit.Recorder
	notifier notification.Dispatcher
	log      logrus.FieldLogger
	tracer   trace.Tracer
}

// NewManager returns a Manager. A nil gate checks roles against the built-in table.
// notifier may be nil, in which case no email is sent.
func NewManager(st store.Store, gate *rbac.Gate, recorder *audit.Recorder, notifier notification.Dispatcher, log logrus.FieldLogger) *Manager {
	if gate == nil {
		gate = rbac.NewGate(nil)
	}
	return &Manager{
		store:    st,
		gate:     gate,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		tracer:   otel.Tracer(tracerName),
	}
}

func (m *Manager) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "task."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateTask adds a task to a project. The status always starts at TODO whatever the input says.
func (m *Manager) CreateTask(ctx context.Context, in taskdomain.Task, projectID, actorID int64) (view *taskdomain.View, err error) {
	ctx, span := m.start(ctx, "CreateTask", attribute.Int64("project_id", projectID), attribute.Int64("user_id", actorID))
	defer func() { finish(span, err) }()

	t := in.Clone()
	t.ID = 0
	t.ProjectID = projectID
	t.Status = taskdomain.StatusTodo
	t.Name = strings.TrimSpace(t.Name)
	if !t.DueDate.IsZero() {
		t.DueDate = taskdomain.Date(t.DueDate)
	}
	if t.CompletionDate != nil {
		d := taskdomain.Date(*t.CompletionDate)
		t.CompletionDate = &d
	}

	err = m.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		project, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if _, err := m.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.CreateTask); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return apperr.Validation(err.Error())
		}
		var assignee *userdomain.User
		if t.AssigneeID != nil {
			if assignee, err = r.Users.GetByID(ctx, *t.AssigneeID); err != nil {
				return err
			}
		}
		if err := r.Tasks.Create(ctx, t); err != nil {
			return err
		}
		view = newView(t, project.Summary(), assignee)
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("create task", err)
	}
	m.log.WithFields(logrus.Fields{"task_id": t.ID, "project_id": projectID, "user_id": actorID}).Info("task created")
	return view, nil
}

// AssignTask sets the task's assignee and emails them after the change is committed.
// The assignee must exist; membership in the project is not required.
func (m *Manager) AssignTask(ctx context.Context, taskID, projectID, assigneeID, actorID int64) (view *taskdomain.View, err error) {
	ctx, span := m.start(ctx, "AssignTask", attribute.Int64("task_id", taskID), attribute.Int64("project_id", projectID),
		attribute.Int64("user_id", actorID), attribute.Int64("assignee_id", assigneeID))
	defer func() { finish(span, err) }()

	var assignee *userdomain.User
	err = m.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := m.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.AssignTask); err != nil {
			return err
		}
		t, err := loadInProject(ctx, r.Tasks.GetForUpdate, taskID, projectID)
		if err != nil {
			return err
		}
		if assignee, err = r.Users.GetByID(ctx, assigneeID); err != nil {
			return err
		}
		previous := auditdomain.FormatOptionalID(t.AssigneeID)
		if err := r.Tasks.UpdateAssignee(ctx, taskID, assigneeID); err != nil {
			return err
		}
		t.AssigneeID = &assigneeID
		m.recorder.Record(ctx, r.Changes, taskID, actorID, auditdomain.FieldAssignee, previous, auditdomain.FormatOptionalID(t.AssigneeID))
		view, err = m.view(ctx, r, t, assignee)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("assign task", err)
	}
	m.log.WithFields(logrus.Fields{"task_id": taskID, "project_id": projectID, "user_id": actorID, "assignee_id": assigneeID}).Info("task assigned")
	if m.notifier != nil {
		subject, body := assignmentEmail(&view.Task, assignee)
		m.notifier.Send(ctx, assignee.Email, subject, body)
	}
	return view, nil
}

// EditTask applies newValues and records one change per field whose value differs.
// The task row is written once whether or not anything changed, and only changed columns are set.
func (m *Manager) EditTask(ctx context.Context, taskID, projectID, actorID int64, newValues taskdomain.Fields) (view *taskdomain.View, err error) {
	ctx, span := m.start(ctx, "EditTask", attribute.Int64("task_id", taskID), attribute.Int64("project_id", projectID), attribute.Int64("user_id", actorID))
	defer func() { finish(span, err) }()

	var changed int
	err = m.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := m.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.EditTask); err != nil {
			return err
		}
		if err := newValues.Validate(); err != nil {
			return err
		}
		t, err := loadInProject(ctx, r.Tasks.GetForUpdate, taskID, projectID)
		if err != nil {
			return err
		}
		changes := t.Apply(newValues)
		fields := make([]string, len(changes))
		for i, c := range changes {
			fields[i] = c.Field
		}
		if err := r.Tasks.UpdateFields(ctx, t, fields); err != nil {
			return err
		}
		changed = m.recorder.RecordAll(ctx, r.Changes, taskID, actorID, changes)
		view, err = m.view(ctx, r, t, nil)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("edit task", err)
	}
	span.SetAttributes(attribute.Int("changes", changed))
	m.log.WithFields(logrus.Fields{"task_id": taskID, "project_id": projectID, "user_id": actorID, "changes": changed}).Info("task edited")
	return view, nil
}

// ChangeStatus moves the task to newStatus. Any status may follow any other.
func (m *Manager) ChangeStatus(ctx context.Context, taskID, projectID, actorID int64, newStatus string) (view *taskdomain.View, err error) {
	ctx, span := m.start(ctx, "ChangeStatus", attribute.Int64("task_id", taskID), attribute.Int64("project_id", projectID),
		attribute.Int64("user_id", actorID), attribute.String("status", newStatus))
	defer func() { finish(span, err) }()

	err = m.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := m.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.ChangeStatus); err != nil {
			return err
		}
		t, err := loadInProject(ctx, r.Tasks.GetForUpdate, taskID, projectID)
		if err != nil {
			return err
		}
		status, err := taskdomain.ParseStatus(newStatus)
		if err != nil {
			return err
		}
		previous := t.Status
		if err := r.Tasks.UpdateStatus(ctx, taskID, status); err != nil {
			return err
		}
		t.Status = status
		m.recorder.Record(ctx, r.Changes, taskID, actorID, auditdomain.FieldStatus, string(previous), string(status))
		view, err = m.view(ctx, r, t, nil)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("change status", err)
	}
	m.log.WithFields(logrus.Fields{"task_id": taskID, "project_id": projectID, "user_id": actorID, "status": newStatus}).Info("task status changed")
	return view, nil
}

// GetTask returns a task to any member of its project.
func (m *Manager) GetTask(ctx context.Context, taskID, projectID, viewerID int64) (view *taskdomain.View, err error) {
	ctx, span := m.start(ctx, "GetTask", attribute.Int64("task_id", taskID), attribute.Int64("project_id", projectID), attribute.Int64("user_id", viewerID))
	defer func() { finish(span, err) }()

	r := m.store.Repos()
	if _, err = rbac.RequireMember(ctx, r.Memberships, projectID, viewerID); err != nil {
		return nil, err
	}
	t, err := loadInProject(ctx, r.Tasks.GetByID, taskID, projectID)
	if err != nil {
		return nil, apperr.Internal("get task", err)
	}
	view, err = m.view(ctx, r, t, nil)
	if err != nil {
		return nil, apperr.Internal("get task", err)
	}
	return view, nil
}

// ListTasksByStatus returns a project's tasks in one status.
// It does not check the caller's membership; callers that need that must check it themselves.
func (m *Manager) ListTasksByStatus(ctx context.Context, projectID int64, status string) (views []*taskdomain.View, err error) {
	ctx, span := m.start(ctx, "ListTasksByStatus", attribute.Int64("project_id", projectID), attribute.String("status", status))
	defer func() { finish(span, err) }()

	st, err := taskdomain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	r := m.store.Repos()
	tasks, err := r.Tasks.ListByProjectAndStatus(ctx, projectID, st)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	views, err = m.views(ctx, r, tasks)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	return views, nil
}

// ListTasksForUser returns the tasks of every project the user belongs to.
func (m *Manager) ListTasksForUser(ctx context.Context, userID int64) (views []*taskdomain.View, err error) {
	ctx, span := m.start(ctx, "ListTasksForUser", attribute.Int64("user_id", userID))
	defer func() { finish(span, err) }()

	r := m.store.Repos()
	if _, err = r.Users.GetByID(ctx, userID); err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	memberships, err := r.Memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	var tasks []*taskdomain.Task
	for _, ms := range memberships {
		ts, err := r.Tasks.ListByProject(ctx, ms.ProjectID)
		if err != nil {
			return nil, apperr.Internal("list tasks", err)
		}
		tasks = append(tasks, ts...)
	}
	views, err = m.views(ctx, r, tasks)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	return views, nil
}

// History returns the task's change records, oldest first, to any member of its project.
func (m *Manager) History(ctx context.Context, taskID, projectID, viewerID int64) (records []*auditdomain.ChangeRecord, err error) {
	ctx, span := m.start(ctx, "History", attribute.Int64("task_id", taskID), attribute.Int64("project_id", projectID), attribute.Int64("user_id", viewerID))
	defer func() { finish(span, err) }()

	r := m.store.Repos()
	if _, err = rbac.RequireMember(ctx, r.Memberships, projectID, viewerID); err != nil {
		return nil, err
	}
	if _, err = loadInProject(ctx, r.Tasks.GetByID, taskID, projectID); err != nil {
		return nil, apperr.Internal("task history", err)
	}
	records, err = r.Changes.ListByTask(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal("task history", err)
	}
	return records, nil
}

// loadInProject reads the task through get, and returns ErrProjectMismatch when it belongs to another project.
// Mutations pass Tasks.GetForUpdate so the row stays locked until they commit.
func loadInProject(ctx context.Context, get func(context.Context, int64) (*taskdomain.Task, error), taskID, projectID int64) (*taskdomain.Task, error) {
	t, err := get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != projectID {
		return nil, fmt.Errorf("task %d, project %d: %w", taskID, projectID, apperr.ErrProjectMismatch)
	}
	return t, nil
}

// view builds the task view. assignee may be passed when already loaded.
func (m *Manager) view(ctx context.Context, r store.Repos, t *taskdomain.Task, assignee *userdomain.User) (*taskdomain.View, error) {
	project, err := r.Projects.GetByID(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	if assignee == nil && t.AssigneeID != nil {
		if assignee, err = r.Users.GetByID(ctx, *t.AssigneeID); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			m.log.WithFields(logrus.Fields{"task_id": t.ID, "assignee_id": *t.AssigneeID}).Warn("task assignee no longer exists")
		}
	}
	return newView(t, project.Summary(), assignee), nil
}

func (m *Manager) views(ctx context.Context, r store.Repos, tasks []*taskdomain.Task) ([]*taskdomain.View, error) {
	out := make([]*taskdomain.View, 0, len(tasks))
	for _, t := range tasks {
		v, err := m.view(ctx, r, t, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func newView(t *taskdomain.Task, project projectdomain.Summary, assignee *userdomain.User) *taskdomain.View {
	v := &taskdomain.View{Task: *t.Clone(), Project: project}
	if assignee != nil {
		s := assignee.Summary()
		v.Assignee = &s
	}
	return v
}
