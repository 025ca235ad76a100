// Package authz maps principal roles to onboarding capabilities.
//
// Handlers and the orchestrator ask one Authorizer whether the principal in
// context holds a capability instead of comparing identities inline. Role to
// capability bindings come from configuration.
package authz

import (
	"context"
	"fmt"
	"slices"
	"strings"

	dErrors "castline/pkg/domain-errors"
	platformstrings "castline/pkg/platform/strings"
	"castline/pkg/requestcontext"
)

// Capability names one administrative permission.
type Capability string

const (
	CapabilityAdjudicateSubjects Capability = "subjects:adjudicate"
	CapabilityOverrideSubjects   Capability = "subjects:override"
	CapabilityReadSubjects       Capability = "subjects:read"
	CapabilityManagePayments     Capability = "payments:manage"
	CapabilityReadPayments       Capability = "payments:read"
	CapabilityIssueTokens        Capability = "tokens:issue"
)

var knownCapabilities = []Capability{
	CapabilityAdjudicateSubjects,
	CapabilityOverrideSubjects,
	CapabilityReadSubjects,
	CapabilityManagePayments,
	CapabilityReadPayments,
	CapabilityIssueTokens,
}

// ParseCapability validates a capability name from configuration.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(s))
	if !slices.Contains(knownCapabilities, c) {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// Authorizer decides whether the principal in ctx holds a capability.
type Authorizer interface {
	Require(ctx context.Context, capability Capability) error
}

// RoleAuthorizer grants capabilities through static role bindings.
type RoleAuthorizer struct {
	bindings map[string][]Capability
}

// NewRoleAuthorizer builds an authorizer from role -> capabilities bindings.
func NewRoleAuthorizer(bindings map[string][]Capability) *RoleAuthorizer {
	copied := make(map[string][]Capability, len(bindings))
	for role, caps := range bindings {
		copied[role] = slices.Clone(caps)
	}
	return &RoleAuthorizer{bindings: copied}
}

// ParseBindings reads bindings of the form role -> "cap1|cap2".
func ParseBindings(raw map[string]string) (map[string][]Capability, error) {
	out := make(map[string][]Capability, len(raw))
	for role, list := range raw {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("empty role name in bindings")
		}
		for _, part := range platformstrings.SplitList(list, "|") {
			c, err := ParseCapability(part)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			out[role] = append(out[role], c)
		}
	}
	return out, nil
}

// Allows reports whether any of roles is bound to capability.
func (a *RoleAuthorizer) Allows(roles []string, capability Capability) bool {
	for _, role := range roles {
		if slices.Contains(a.bindings[role], capability) {
			return true
		}
	}
	return false
}

// Require returns Unauthorized without a principal and Forbidden when the
// principal's roles do not grant capability.
func (a *RoleAuthorizer) Require(ctx context.Context, capability Capability) error {
	if requestcontext.AccountID(ctx).IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !a.Allows(requestcontext.Roles(ctx), capability) {
		return dErrors.New(dErrors.CodeForbidden, "missing capability "+string(capability))
	}
	return nil
}

// AllowAll grants every capability. Used by workers acting as the system.
type AllowAll struct{}

func (AllowAll) Require(context.Context, Capability) error { return nil }
