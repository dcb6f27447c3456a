package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	auditdomain "pmt/backend/internal/audit/domain"
	membershipdomain "pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/apperr"
	projectdomain "pmt/backend/internal/project/domain"
	taskdomain "pmt/backend/internal/task/domain"
	userdomain "pmt/backend/internal/user/domain"
)

// Memory is an in-process Store for local runs and tests. Transactions are serialized and
// run against a copy of the data that replaces the live copy only on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState(), now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) Repos() Repos {
	return m.repos(&memDB{m: m})
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, m.repos(&memDB{m: m, tx: work})); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) repos(d *memDB) Repos {
	return Repos{
		Users:       &memUsers{d},
		Projects:    &memProjects{d},
		Memberships: &memMemberships{d},
		Tasks:       &memTasks{d},
		Changes:     &memChanges{d},
	}
}

type memState struct {
	seq         map[string]int64
	users       map[int64]userdomain.User
	projects    map[int64]projectdomain.Project
	memberships map[int64]membershipdomain.Membership
	tasks       map[int64]*taskdomain.Task
	changes     []auditdomain.ChangeRecord
}

func newMemState() *memState {
	return &memState{
		seq:         map[string]int64{},
		users:       map[int64]userdomain.User{},
		projects:    map[int64]projectdomain.Project{},
		memberships: map[int64]membershipdomain.Membership{},
		tasks:       map[int64]*taskdomain.Task{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v.Clone()
	}
	c.changes = append([]auditdomain.ChangeRecord(nil), s.changes...)
	return c
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// memDB routes repository calls to the transaction's working copy, or to the live copy under the store lock.
type memDB struct {
	m  *Memory
	tx *memState
}

func (d *memDB) do(fn func(s *memState) error) error {
	if d.tx != nil {
		return fn(d.tx)
	}
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return fn(d.m.state)
}

func (d *memDB) now() time.Time { return d.m.now() }

type memUsers struct{ d *memDB }

func (r *memUsers) GetByID(ctx context.Context, id int64) (u *userdomain.User, err error) {
	err = r.d.do(func(s *memState) error {
		v, ok := s.users[id]
		if !ok {
			return apperr.NotFound("user", id)
		}
		u = &v
		return nil
	})
	return u, err
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (u *userdomain.User, err error) {
	email = userdomain.NormalizeEmail(email)
	err = r.d.do(func(s *memState) error {
		for _, v := range s.users {
			if v.Email == email {
				u = &v
				return nil
			}
		}
		return fmt.Errorf("user %q: %w", email, apperr.ErrNotFound)
	})
	return u, err
}

func (r *memUsers) Create(ctx context.Context, u *userdomain.User) error {
	u.Email = userdomain.NormalizeEmail(u.Email)
	return r.d.do(func(s *memState) error {
		for _, v := range s.users {
			if v.Email == u.Email {
				return apperr.Validation("email " + u.Email + " is already registered")
			}
		}
		u.ID = s.next("users")
		u.CreatedAt = r.d.now()
		s.users[u.ID] = *u
		return nil
	})
}

func (r *memUsers) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return r.d.do(func(s *memState) error {
		v, ok := s.users[id]
		if !ok {
			return apperr.NotFound("user", id)
		}
		v.PasswordHash = hash
		s.users[id] = v
		return nil
	})
}

type memProjects struct{ d *memDB }

func (r *memProjects) GetByID(ctx context.Context, id int64) (p *projectdomain.Project, err error) {
	err = r.d.do(func(s *memState) error {
		v, ok := s.projects[id]
		if !ok {
			return apperr.NotFound("project", id)
		}
		p = &v
		return nil
	})
	return p, err
}

func (r *memProjects) ListByMember(ctx context.Context, userID int64) (out []*projectdomain.Project, err error) {
	err = r.d.do(func(s *memState) error {
		for _, m := range s.memberships {
			if m.UserID != userID {
				continue
			}
			if p, ok := s.projects[m.ProjectID]; ok {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *memProjects) Create(ctx context.Context, p *projectdomain.Project) error {
	return r.d.do(func(s *memState) error {
		if _, ok := s.users[p.OwnerID]; !ok {
			return apperr.NotFound("user", p.OwnerID)
		}
		p.ID = s.next("projects")
		p.CreatedAt = r.d.now()
		s.projects[p.ID] = *p
		return nil
	})
}

type memMemberships struct{ d *memDB }

func (r *memMemberships) GetByProjectAndUser(ctx context.Context, projectID, userID int64) (m *membershipdomain.Membership, err error) {
	err = r.d.do(func(s *memState) error {
		for _, v := range s.memberships {
			if v.ProjectID == projectID && v.UserID == userID {
				m = &v
				return nil
			}
		}
		return fmt.Errorf("membership of user %d in project %d: %w", userID, projectID, apperr.ErrNotFound)
	})
	return m, err
}

func (r *memMemberships) ListByProject(ctx context.Context, projectID int64) ([]*membershipdomain.Membership, error) {
	return r.filter(func(m membershipdomain.Membership) bool { return m.ProjectID == projectID })
}

func (r *memMemberships) ListByUser(ctx context.Context, userID int64) ([]*membershipdomain.Membership, error) {
	out, err := r.filter(func(m membershipdomain.Membership) bool { return m.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, err
}

func (r *memMemberships) filter(keep func(membershipdomain.Membership) bool) (out []*membershipdomain.Membership, err error) {
	err = r.d.do(func(s *memState) error {
		for _, v := range s.memberships {
			if keep(v) {
				out = append(out, &v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *memMemberships) Create(ctx context.Context, m *membershipdomain.Membership) error {
	return r.d.do(func(s *memState) error {
		if _, ok := s.projects[m.ProjectID]; !ok {
			return apperr.NotFound("project", m.ProjectID)
		}
		if _, ok := s.users[m.UserID]; !ok {
			return apperr.NotFound("user", m.UserID)
		}
		for _, v := range s.memberships {
			if v.ProjectID == m.ProjectID && v.UserID == m.UserID {
				return apperr.Validation(fmt.Sprintf("user %d is already a member of project %d", m.UserID, m.ProjectID))
			}
		}
		m.ID = s.next("memberships")
		m.CreatedAt = r.d.now()
		s.memberships[m.ID] = *m
		return nil
	})
}

func (r *memMemberships) UpdateRole(ctx context.Context, projectID, userID int64, role membershipdomain.Role) (m *membershipdomain.Membership, err error) {
	err = r.d.do(func(s *memState) error {
		for id, v := range s.memberships {
			if v.ProjectID == projectID && v.UserID == userID {
				v.Role = role
				s.memberships[id] = v
				m = &v
				return nil
			}
		}
		return fmt.Errorf("membership of user %d in project %d: %w", userID, projectID, apperr.ErrNotFound)
	})
	return m, err
}

type memTasks struct{ d *memDB }

func (r *memTasks) Create(ctx context.Context, t *taskdomain.Task) error {
	return r.d.do(func(s *memState) error {
		if _, ok := s.projects[t.ProjectID]; !ok {
			return apperr.NotFound("project", t.ProjectID)
		}
		t.ID = s.next("tasks")
		t.CreatedAt = r.d.now()
		t.UpdatedAt = t.CreatedAt
		s.tasks[t.ID] = t.Clone()
		return nil
	})
}

func (r *memTasks) GetByID(ctx context.Context, id int64) (t *taskdomain.Task, err error) {
	err = r.d.do(func(s *memState) error {
		v, ok := s.tasks[id]
		if !ok {
			return apperr.NotFound("task", id)
		}
		t = v.Clone()
		return nil
	})
	return t, err
}

// GetForUpdate needs no lock: the whole transaction already holds the store mutex.
func (r *memTasks) GetForUpdate(ctx context.Context, id int64) (*taskdomain.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *memTasks) ListByProject(ctx context.Context, projectID int64) ([]*taskdomain.Task, error) {
	return r.filter(func(s *memState, t *taskdomain.Task) bool { return t.ProjectID == projectID })
}

func (r *memTasks) ListByProjectAndStatus(ctx context.Context, projectID int64, status taskdomain.Status) ([]*taskdomain.Task, error) {
	return r.filter(func(s *memState, t *taskdomain.Task) bool { return t.ProjectID == projectID && t.Status == status })
}

func (r *memTasks) filter(keep func(*memState, *taskdomain.Task) bool) (out []*taskdomain.Task, err error) {
	err = r.d.do(func(s *memState) error {
		for _, t := range s.tasks {
			if keep(s, t) {
				out = append(out, t.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memTasks) UpdateFields(ctx context.Context, t *taskdomain.Task, fields []string) error {
	c := t.Clone()
	for _, f := range fields {
		switch f {
		case auditdomain.FieldName, auditdomain.FieldDescription, auditdomain.FieldDueDate,
			auditdomain.FieldCompletionDate, auditdomain.FieldPriority, auditdomain.FieldStatus:
		default:
			return fmt.Errorf("update task %d: unknown field %q", t.ID, f)
		}
	}
	return r.update(t.ID, func(cur *taskdomain.Task) {
		for _, f := range fields {
			switch f {
			case auditdomain.FieldName:
				cur.Name = c.Name
			case auditdomain.FieldDescription:
				cur.Description = c.Description
			case auditdomain.FieldDueDate:
				cur.DueDate = c.DueDate
			case auditdomain.FieldCompletionDate:
				cur.CompletionDate = c.CompletionDate
			case auditdomain.FieldPriority:
				cur.Priority = c.Priority
			case auditdomain.FieldStatus:
				cur.Status = c.Status
			}
		}
	})
}

func (r *memTasks) UpdateAssignee(ctx context.Context, id, assigneeID int64) error {
	return r.update(id, func(cur *taskdomain.Task) {
		a := assigneeID
		cur.AssigneeID = &a
	})
}

func (r *memTasks) UpdateStatus(ctx context.Context, id int64, status taskdomain.Status) error {
	return r.update(id, func(cur *taskdomain.Task) { cur.Status = status })
}

func (r *memTasks) update(id int64, set func(cur *taskdomain.Task)) error {
	return r.d.do(func(s *memState) error {
		cur, ok := s.tasks[id]
		if !ok {
			return apperr.NotFound("task", id)
		}
		set(cur)
		cur.UpdatedAt = r.d.now()
		return nil
	})
}

type memChanges struct{ d *memDB }

func (r *memChanges) Append(ctx context.Context, c *auditdomain.ChangeRecord) error {
	return r.d.do(func(s *memState) error {
		c.ID = s.next("task_changes")
		s.changes = append(s.changes, *c)
		return nil
	})
}

func (r *memChanges) ListByTask(ctx context.Context, taskID int64) (out []*auditdomain.ChangeRecord, err error) {
	err = r.d.do(func(s *memState) error {
		for _, c := range s.changes {
			if c.TaskID == taskID {
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}
