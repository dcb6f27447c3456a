package domain

import (
	"fmt"
	"strings"
	"time"
)

// Membership links a user to a project with a role. Unique per (ProjectID, UserID).
type Membership struct {
	ID        int64
	ProjectID int64
	UserID    int64
	Role      Role
	CreatedAt time.Time
}

// Role is a member's authority within one project.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleMember   Role = "MEMBER"
	RoleObserver Role = "OBSERVER"
)

// Roles returns every role, most privileged first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleMember, RoleObserver}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleObserver:
		return true
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
