// Package service implements project creation and membership management.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	membershipdomain "pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/platform/rbac"
	"pmt/backend/internal/project/domain"
	"pmt/backend/internal/store"
	userdomain "pmt/backend/internal/user/domain"
)

// Service implements the project operations.
type Service struct {
	store store.Store
	gate  *rbac.Gate
	log   logrus.FieldLogger
}

// New returns a project Service. A nil gate checks roles against the built-in table.
func New(st store.Store, gate *rbac.Gate, log logrus.FieldLogger) *Service {
	if gate == nil {
		gate = rbac.NewGate(nil)
	}
	return &Service{store: st, gate: gate, log: log}
}

// CreateProject persists p owned by ownerID and grants the owner ADMIN in the same transaction.
func (s *Service) CreateProject(ctx context.Context, p domain.Project, ownerID int64) (*domain.Project, error) {
	p.ID = 0
	p.OwnerID = ownerID
	if err := p.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := r.Users.GetByID(ctx, ownerID); err != nil {
			return err
		}
		if err := r.Projects.Create(ctx, &p); err != nil {
			return err
		}
		return r.Memberships.Create(ctx, &membershipdomain.Membership{
			ProjectID: p.ID,
			UserID:    ownerID,
			Role:      membershipdomain.RoleAdmin,
		})
	})
	if err != nil {
		return nil, apperr.Internal("create project", err)
	}
	s.log.WithFields(logrus.Fields{"project_id": p.ID, "user_id": ownerID}).Info("project created")
	return &p, nil
}

// GetProject returns the project or an error wrapping apperr.ErrNotFound.
func (s *Service) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	p, err := s.store.Repos().Projects.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("get project", err)
	}
	return p, nil
}

// ListProjectsForUser returns every project the user holds a membership in.
func (s *Service) ListProjectsForUser(ctx context.Context, userID int64) ([]*domain.Project, error) {
	r := s.store.Repos()
	if _, err := r.Users.GetByID(ctx, userID); err != nil {
		return nil, apperr.Internal("list projects", err)
	}
	projects, err := r.Projects.ListByMember(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list projects", err)
	}
	return projects, nil
}

// AddMember grants the user registered under email the MEMBER role and returns the project's members
// as read back after the write.
func (s *Service) AddMember(ctx context.Context, projectID int64, email string, actorID int64) ([]domain.MemberSummary, error) {
	var added int64
	err := s.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := r.Projects.GetByID(ctx, projectID); err != nil {
			return err
		}
		if _, err := s.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.ManageMembers); err != nil {
			return err
		}
		u, err := r.Users.GetByEmail(ctx, userdomain.NormalizeEmail(email))
		if err != nil {
			return err
		}
		added = u.ID
		return r.Memberships.Create(ctx, &membershipdomain.Membership{
			ProjectID: projectID,
			UserID:    u.ID,
			Role:      membershipdomain.RoleMember,
		})
	})
	if err != nil {
		return nil, apperr.Internal("add member", err)
	}
	s.log.WithFields(logrus.Fields{"project_id": projectID, "user_id": actorID, "member_id": added}).Info("member added")
	return s.ListMembers(ctx, projectID)
}

// AssignRole changes a member's role. The project owner always stays ADMIN.
func (s *Service) AssignRole(ctx context.Context, projectID, memberID int64, role string, actorID int64) (*domain.MemberSummary, error) {
	parsed, err := membershipdomain.ParseRole(role)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	var out *domain.MemberSummary
	err = s.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		p, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if _, err := s.gate.Require(ctx, r.Memberships, projectID, actorID, rbac.ManageMembers); err != nil {
			return err
		}
		if p.OwnerID == memberID && parsed != membershipdomain.RoleAdmin {
			return apperr.Validation("the project owner must keep the ADMIN role")
		}
		m, err := r.Memberships.UpdateRole(ctx, projectID, memberID, parsed)
		if err != nil {
			return err
		}
		u, err := r.Users.GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		out = &domain.MemberSummary{UserID: u.ID, Username: u.Username, Email: u.Email, Role: m.Role}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("assign role", err)
	}
	s.log.WithFields(logrus.Fields{"project_id": projectID, "user_id": actorID, "member_id": memberID, "role": parsed}).Info("role assigned")
	return out, nil
}

// ListMembers returns a summary of every member of the project, in membership order.
func (s *Service) ListMembers(ctx context.Context, projectID int64) ([]domain.MemberSummary, error) {
	r := s.store.Repos()
	if _, err := r.Projects.GetByID(ctx, projectID); err != nil {
		return nil, apperr.Internal("list members", err)
	}
	ms, err := r.Memberships.ListByProject(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list members", err)
	}
	out := make([]domain.MemberSummary, 0, len(ms))
	for _, m := range ms {
		u, err := r.Users.GetByID(ctx, m.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("member %d of project %d: %w", m.UserID, projectID, apperr.ErrInternal)
			}
			return nil, apperr.Internal("list members", err)
		}
		out = append(out, domain.MemberSummary{UserID: u.ID, Username: u.Username, Email: u.Email, Role: m.Role})
	}
	return out, nil
}
