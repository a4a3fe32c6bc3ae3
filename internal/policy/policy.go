// Pivota | 2026
// policy.go

// Package policy decides which roles an account may self-select at signup,
// based on the subscription plan. The engine is pure: it holds a static
// plan table and performs no I/O.
package policy

import (
	"errors"
	"fmt"
	"sort"
)

// BaseRole is granted to every account regardless of plan and is never part
// of a plan's selectable set.
const BaseRole = "user"

var ErrUnknownPlan = errors.New("unknown plan")

// RoleNotAllowedError reports a requested role outside the plan's allow-list.
type RoleNotAllowedError struct {
	Plan string
	Role string
}

func (e *RoleNotAllowedError) Error() string {
	return fmt.Sprintf("role %q is not allowed for plan %q", e.Role, e.Plan)
}

// RoleQuotaError reports a selection larger than the plan's role quota.
type RoleQuotaError struct {
	Plan  string
	Limit int
}

func (e *RoleQuotaError) Error() string {
	return fmt.Sprintf(
		"plan %q allows at most %d additional role(s)",
		e.Plan,
		e.Limit,
	)
}

// PlanPolicy is the allow-list and quota for one subscription tier. The base
// role is implicit and never appears in AllowedRoles.
type PlanPolicy struct {
	AllowedRoles []string
	MaxRoles     int
}

type Engine struct {
	plans map[string]PlanPolicy
}

func NewEngine(plans map[string]PlanPolicy) *Engine {
	return &Engine{plans: plans}
}

// DefaultEngine returns the platform's tier table: free accounts get the base
// role only; paid tiers may add marketplace roles up to the tier's quota.
func DefaultEngine() *Engine {
	paidRoles := []string{"employer", "landlord", "serviceProvider"}

	return NewEngine(map[string]PlanPolicy{
		"free":   {AllowedRoles: nil, MaxRoles: 0},
		"bronze": {AllowedRoles: paidRoles, MaxRoles: 1},
		"silver": {AllowedRoles: paidRoles, MaxRoles: 2},
		"gold":   {AllowedRoles: paidRoles, MaxRoles: 3},
	})
}

// PlanNames lists the configured tiers in stable order.
func (e *Engine) PlanNames() []string {
	names := make([]string, 0, len(e.plans))
	for name := range e.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSelection checks requested against the plan's allow-list and quota
// and returns the granted set: the base role first, then the deduplicated
// requested roles. An empty request grants the base role only.
func (e *Engine) ValidateSelection(
	planName string,
	requested []string,
) ([]string, error) {
	plan, ok := e.plans[planName]
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", planName, ErrUnknownPlan)
	}

	granted := []string{BaseRole}
	seen := map[string]struct{}{BaseRole: {}}

	for _, role := range requested {
		if role == BaseRole {
			// implicit on every account, never selectable
			return nil, &RoleNotAllowedError{Plan: planName, Role: role}
		}

		if _, dup := seen[role]; dup {
			continue
		}

		if !contains(plan.AllowedRoles, role) {
			return nil, &RoleNotAllowedError{Plan: planName, Role: role}
		}

		seen[role] = struct{}{}
		granted = append(granted, role)
	}

	if len(granted)-1 > plan.MaxRoles {
		return nil, &RoleQuotaError{Plan: planName, Limit: plan.MaxRoles}
	}

	return granted, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
