package domain

import (
	"errors"
	"strings"
	"time"

	membershipdomain "pmt/backend/internal/membership/domain"
)

// Project groups tasks and memberships. It has exactly one owner, who is granted ADMIN on creation.
type Project struct {
	ID          int64
	Name        string
	Description string
	// StartDate is a calendar date; zero when unset.
	StartDate time.Time
	OwnerID   int64
	CreatedAt time.Time
}

// Summary is the short form of a project embedded in task views.
type Summary struct {
	ID          int64
	Name        string
	Description string
}

// Summary returns the short form of p.
func (p *Project) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Description: p.Description}
}

// Validate validates the project for persistence. Returns an error describing the first validation failure.
func (p *Project) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.OwnerID == 0 {
		return errors.New("owner is required")
	}
	return nil
}

// MemberSummary describes one member of a project.
type MemberSummary struct {
	UserID   int64
	Username string
	Email    string
	Role     membershipdomain.Role
}
