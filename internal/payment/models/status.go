package models

import (
	"slices"
	"strings"

	dErrors "castline/pkg/domain-errors"
)

// PlanType is the commercial plan a payment buys.
type PlanType string

const (
	PlanGuide  PlanType = "guide"
	PlanGold   PlanType = "gold"
	PlanMaster PlanType = "master"
)

func ParsePlanType(s string) (PlanType, error) {
	switch p := PlanType(strings.ToLower(strings.TrimSpace(s))); p {
	case PlanGuide, PlanGold, PlanMaster:
		return p, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "plan_type must be one of guide, gold, master")
	}
}

// GoodStatus is the status a gateway success moves this plan into.
func (p PlanType) GoodStatus() Status {
	switch p {
	case PlanGuide:
		return StatusSucceeded
	case PlanGold:
		return StatusPaid
	case PlanMaster:
		return StatusActive
	default:
		return ""
	}
}

// Status is the closed set of payment states. Approved is kept for rows
// written by older systems; no transition enters or leaves it.
type Status string

const (
	StatusPending            Status = "pending"
	StatusPendingNegotiation Status = "pending_negotiation"
	StatusApproved           Status = "approved"
	StatusActive             Status = "active"
	StatusPaid               Status = "paid"
	StatusSucceeded          Status = "succeeded"
	StatusRejected           Status = "rejected"
	StatusCancelled          Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending, StatusPendingNegotiation, StatusApproved, StatusActive,
	StatusPaid, StatusSucceeded, StatusRejected, StatusCancelled,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(allStatuses, st) {
		return "", dErrors.New(dErrors.CodeValidation, "unknown payment status")
	}
	return st, nil
}

// IsGood reports whether the plan has been paid for or activated.
func (s Status) IsGood() bool {
	return s == StatusActive || s == StatusPaid || s == StatusSucceeded
}

// IsRevoked reports whether the payment was cancelled or rejected.
func (s Status) IsRevoked() bool {
	return s == StatusRejected || s == StatusCancelled
}

// TokenEligibleStatuses are the states in which a registration token may be
// issued or redeemed. Master plans get their token while terms are still
// being negotiated.
var TokenEligibleStatuses = []Status{
	StatusSucceeded, StatusPaid, StatusActive, StatusPendingNegotiation,
}

// IsTokenEligible reports whether a token may be issued or redeemed in s.
func (s Status) IsTokenEligible() bool {
	return slices.Contains(TokenEligibleStatuses, s)
}
