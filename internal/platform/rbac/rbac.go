// Package rbac decides whether a project role may perform a task action.
// Evaluate is a pure lookup over the closed role set; a Gate resolves the caller's membership first
// and then asks a Policy, which is Evaluate unless an operator policy is configured.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/apperr"
)

// Action is an operation gated by project role.
type Action string

const (
	CreateTask    Action = "CreateTask"
	AssignTask    Action = "AssignTask"
	EditTask      Action = "EditTask"
	ChangeStatus  Action = "ChangeStatus"
	ManageMembers Action = "ManageMembers"
)

// Actions returns every gated action.
func Actions() []Action {
	return []Action{CreateTask, AssignTask, EditTask, ChangeStatus, ManageMembers}
}

// Decision is the outcome of Evaluate.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Evaluate returns whether role may perform action. Unknown roles and unknown actions are denied.
func Evaluate(role domain.Role, action Action) Decision {
	switch role {
	case domain.RoleAdmin:
		switch action {
		case CreateTask, AssignTask, EditTask, ChangeStatus, ManageMembers:
			return Allowed
		}
	case domain.RoleMember:
		switch action {
		case CreateTask, AssignTask, EditTask, ChangeStatus:
			return Allowed
		}
	case domain.RoleObserver:
		if action == ChangeStatus {
			return Allowed
		}
	}
	return Denied
}

// MembershipGetter returns a user's membership in a project, or an error wrapping apperr.ErrNotFound.
type MembershipGetter interface {
	GetByProjectAndUser(ctx context.Context, projectID, userID int64) (*domain.Membership, error)
}

// RequireMember returns the caller's membership, or ErrNotAMember when there is none.
func RequireMember(ctx context.Context, getter MembershipGetter, projectID, userID int64) (*domain.Membership, error) {
	m, err := getter.GetByProjectAndUser(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, apperr.ErrNotAMember)
		}
		return nil, apperr.Internal("resolve membership", err)
	}
	return m, nil
}

// Policy decides a (role, action) pair. Implementations must deny roles and actions they do not know.
type Policy interface {
	Decide(ctx context.Context, role domain.Role, action Action) (Decision, error)
}

// Table is the built-in Policy backed by Evaluate.
type Table struct{}

func (Table) Decide(_ context.Context, role domain.Role, action Action) (Decision, error) {
	return Evaluate(role, action), nil
}

// Gate resolves the caller's membership and asks its Policy about the role.
type Gate struct {
	policy Policy
}

// NewGate returns a Gate consulting policy, or the built-in Table when policy is nil.
func NewGate(policy Policy) *Gate {
	if policy == nil {
		policy = Table{}
	}
	return &Gate{policy: policy}
}

// Require checks membership before consulting the policy, so a non-member always gets ErrNotAMember
// and a member whose role lacks the action gets ErrPermissionDenied. A policy error denies.
func (g *Gate) Require(ctx context.Context, getter MembershipGetter, projectID, userID int64, action Action) (*domain.Membership, error) {
	m, err := RequireMember(ctx, getter, projectID, userID)
	if err != nil {
		return nil, err
	}
	d, err := g.policy.Decide(ctx, m.Role, action)
	if err != nil {
		return nil, apperr.Internal("evaluate role policy", err)
	}
	if d != Allowed {
		return nil, fmt.Errorf("%w: role %s may not %s", apperr.ErrPermissionDenied, m.Role, action)
	}
	return m, nil
}

// Require is Gate.Require with the built-in Table.
func Require(ctx context.Context, getter MembershipGetter, projectID, userID int64, action Action) (*domain.Membership, error) {
	return NewGate(nil).Require(ctx, getter, projectID, userID, action)
}
