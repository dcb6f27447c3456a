package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	membershipdomain "pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/platform/rbac"
)

func observerMayEdit(t *testing.T) string {
	t.Helper()
	p := strings.Replace(RolePolicy, `"OBSERVER": {"ChangeStatus"}`, `"OBSERVER": {"ChangeStatus", "EditTask"}`, 1)
	if p == RolePolicy {
		t.Fatal("policy text did not change")
	}
	return p
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicyMatchesTable(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	overrides, err := e.Overrides(ctx)
	if err != nil {
		t.Fatalf("Overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Errorf("overrides = %v, want none", overrides)
	}
}

func TestOPAEvaluator_Decide(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		role   membershipdomain.Role
		action rbac.Action
		want   rbac.Decision
	}{
		{membershipdomain.RoleAdmin, rbac.ManageMembers, rbac.Allowed},
		{membershipdomain.RoleMember, rbac.EditTask, rbac.Allowed},
		{membershipdomain.RoleMember, rbac.ManageMembers, rbac.Denied},
		{membershipdomain.RoleObserver, rbac.ChangeStatus, rbac.Allowed},
		{membershipdomain.RoleObserver, rbac.CreateTask, rbac.Denied},
		{"", rbac.ChangeStatus, rbac.Denied},
		{membershipdomain.RoleAdmin, "DeleteProject", rbac.Denied},
	}
	for _, tt := range tests {
		got, err := e.Decide(ctx, tt.role, tt.action)
		if err != nil {
			t.Fatalf("Decide(%q, %q): %v", tt.role, tt.action, err)
		}
		if got != tt.want {
			t.Errorf("Decide(%q, %q) = %s, want %s", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestOPAEvaluator_Overrides(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, observerMayEdit(t))
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	overrides, err := e.Overrides(ctx)
	if err != nil {
		t.Fatalf("Overrides: %v", err)
	}
	if len(overrides) != 1 || overrides[0] != "OBSERVER/EditTask: allowed" {
		t.Errorf("overrides = %v, want [OBSERVER/EditTask: allowed]", overrides)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_HealthCheckRejectsUnknownRoleGrant(t *testing.T) {
	ctx := context.Background()
	p := strings.Replace(RolePolicy, `"OBSERVER": {"ChangeStatus"},`, `"OBSERVER": {"ChangeStatus"},
	"GUEST": {"CreateTask"},`, 1)
	e, err := NewOPAEvaluator(ctx, p)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err == nil {
		t.Fatal("HealthCheck: expected error for a grant to an unknown role")
	}
}

type membershipGetter map[int64]membershipdomain.Role

func (g membershipGetter) GetByProjectAndUser(ctx context.Context, projectID, userID int64) (*membershipdomain.Membership, error) {
	role, ok := g[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &membershipdomain.Membership{ProjectID: projectID, UserID: userID, Role: role}, nil
}

func TestOPAEvaluator_DecidesGateRequests(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rbac.rego")
	if err := os.WriteFile(path, []byte(observerMayEdit(t)), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := NewOPAEvaluatorFromFile(ctx, path)
	if err != nil {
		t.Fatalf("NewOPAEvaluatorFromFile: %v", err)
	}
	gate := rbac.NewGate(e)
	members := membershipGetter{1: membershipdomain.RoleObserver}

	if _, err := gate.Require(ctx, members, 10, 1, rbac.EditTask); err != nil {
		t.Errorf("observer EditTask under operator policy: %v", err)
	}
	if _, err := gate.Require(ctx, members, 10, 1, rbac.CreateTask); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("observer CreateTask: err = %v, want ErrPermissionDenied", err)
	}
	if _, err := gate.Require(ctx, members, 10, 2, rbac.ChangeStatus); !errors.Is(err, apperr.ErrNotAMember) {
		t.Errorf("non-member: err = %v, want ErrNotAMember", err)
	}
}

func TestNewOPAEvaluatorFromFile_Missing(t *testing.T) {
	if _, err := NewOPAEvaluatorFromFile(context.Background(), filepath.Join(t.TempDir(), "none.rego")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package pmt.rbac\n\nallow if {"); err == nil {
		t.Fatal("expected compile error")
	}
}
