// Package engine decides project role checks with an OPA Rego policy.
// The default policy is the built-in role table; operators may supply their own module defining data.pmt.rbac.allow.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	membershipdomain "pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/rbac"
)

const policyQuery = "data.pmt.rbac.allow"

// RolePolicy grants each role its actions. Roles absent from the table are denied.
const RolePolicy = `package pmt.rbac

default allow := false

grants := {
	"ADMIN": {"CreateTask", "AssignTask", "EditTask", "ChangeStatus", "ManageMembers"},
	"MEMBER": {"CreateTask", "AssignTask", "EditTask", "ChangeStatus"},
	"OBSERVER": {"ChangeStatus"},
}

allow if {
	some action in grants[input.role]
	action == input.action
}
`

// OPAEvaluator evaluates role decisions with a prepared Rego query.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy, or RolePolicy when policy is empty.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = RolePolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"rbac.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile role policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare role policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile compiles the Rego module at path.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// Decide returns the policy's decision for role and action. It implements rbac.Policy.
func (e *OPAEvaluator) Decide(ctx context.Context, role membershipdomain.Role, action rbac.Action) (rbac.Decision, error) {
	input := map[string]interface{}{
		"role":   string(role),
		"action": string(action),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return rbac.Denied, fmt.Errorf("eval role policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return rbac.Denied, fmt.Errorf("role policy query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return rbac.Denied, fmt.Errorf("role policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	if allowed {
		return rbac.Allowed, nil
	}
	return rbac.Denied, nil
}

// unknownRole stands in for any role outside the closed set.
const unknownRole membershipdomain.Role = "GUEST"

// HealthCheck evaluates every (role, action) pair and fails when an evaluation errors
// or when the policy grants anything to a role outside the closed set.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	for _, role := range append(membershipdomain.Roles(), unknownRole) {
		for _, action := range rbac.Actions() {
			got, err := e.Decide(ctx, role, action)
			if err != nil {
				return err
			}
			if role == unknownRole && got == rbac.Allowed {
				return fmt.Errorf("role policy: unknown role may %s", action)
			}
		}
	}
	return nil
}

// Overrides lists the (role, action) pairs on which the policy departs from the built-in table,
// formatted as "ROLE/Action: decision".
func (e *OPAEvaluator) Overrides(ctx context.Context) ([]string, error) {
	var out []string
	for _, role := range membershipdomain.Roles() {
		for _, action := range rbac.Actions() {
			got, err := e.Decide(ctx, role, action)
			if err != nil {
				return nil, err
			}
			if got != rbac.Evaluate(role, action) {
				out = append(out, fmt.Sprintf("%s/%s: %s", role, action, got))
			}
		}
	}
	return out, nil
}
