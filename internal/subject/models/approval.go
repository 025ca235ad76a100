package models

import (
	"strings"

	dErrors "castline/pkg/domain-errors"
)

// ApprovalStatus is the closed set of administrative review states.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch st := ApprovalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown approval status")
	}
}

// IsTerminal reports whether s is a decided state.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Opposite returns the other terminal state.
func (s ApprovalStatus) Opposite() ApprovalStatus {
	switch s {
	case ApprovalApproved:
		return ApprovalRejected
	case ApprovalRejected:
		return ApprovalApproved
	default:
		return ""
	}
}

// ValidateOutcome accepts only terminal outcomes as decide/override input.
func ValidateOutcome(outcome ApprovalStatus) error {
	if !outcome.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, "outcome must be approved or rejected")
	}
	return nil
}

// ResolveDecide classifies a decide call against the current status after a
// conditional update found nothing to change: the same terminal outcome is
// an idempotent no-op, a different one conflicts.
func ResolveDecide(current, outcome ApprovalStatus) error {
	switch {
	case current == outcome:
		return nil
	case current.IsTerminal():
		return dErrors.New(dErrors.CodeConflictingDecision, "subject was already "+string(current))
	default:
		return dErrors.New(dErrors.CodeInvalidTransition, "subject is not awaiting a decision")
	}
}

// ResolveOverride classifies an override call that changed nothing.
func ResolveOverride(current, outcome ApprovalStatus) error {
	switch {
	case current == outcome:
		return nil
	case current == ApprovalPending:
		return dErrors.New(dErrors.CodeInvalidTransition, "pending subjects must be decided, not overridden")
	default:
		return dErrors.New(dErrors.CodeInvalidTransition, "override not allowed from "+string(current))
	}
}
