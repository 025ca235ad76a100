package models

import (
	"strings"
	"time"

	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
)

// SubjectType is the kind of marketplace listing under review.
type SubjectType string

const (
	SubjectTypeGuide    SubjectType = "guide"
	SubjectTypeSupplier SubjectType = "supplier"
	SubjectTypePartner  SubjectType = "partner"
	SubjectTypeProfile  SubjectType = "profile"
)

func ParseSubjectType(s string) (SubjectType, error) {
	switch t := SubjectType(strings.ToLower(strings.TrimSpace(s))); t {
	case SubjectTypeGuide, SubjectTypeSupplier, SubjectTypePartner, SubjectTypeProfile:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "subject_type must be one of guide, supplier, partner, profile")
	}
}

// Subject is the aggregate root for one onboarding registration.
//
// Invariants:
//   - Status moves pending -> approved|rejected through Decide only
//   - A terminal status changes again only through an explicit Override
//   - ApprovedBy/ApprovedAt/DecisionReason are written once, on the first
//     terminal transition, and never rewritten
//   - CreatedAt is immutable
//   - Partner subjects reference the payment that activated their plan
type Subject struct {
	ID             id.SubjectID   `json:"id"`
	Type           SubjectType    `json:"subject_type"`
	AccountID      id.AccountID   `json:"account_id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name"`
	PaymentID      *id.PaymentID  `json:"payment_id,omitempty"`
	Status         ApprovalStatus `json:"approval_status"`
	ApprovedBy     *id.AccountID  `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	OverriddenBy   *id.AccountID  `json:"overridden_by,omitempty"`
	OverriddenAt   *time.Time     `json:"overridden_at,omitempty"`
	OverrideReason string         `json:"override_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewSubject builds a pending subject, validating its invariants.
func NewSubject(subjectID id.SubjectID, subjectType SubjectType, accountID id.AccountID, email, displayName string, paymentID *id.PaymentID, now time.Time) (*Subject, error) {
	email = strings.TrimSpace(email)
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account id is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a valid email is required")
	}
	if len(displayName) > 200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name must be 200 characters or less")
	}
	if subjectType == SubjectTypePartner && paymentID == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "partner registration requires a payment")
	}
	return &Subject{
		ID:          subjectID,
		Type:        subjectType,
		AccountID:   accountID,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		PaymentID:   paymentID,
		Status:      ApprovalPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Decision is the input to one approval transition.
type Decision struct {
	Outcome ApprovalStatus
	ActorID id.AccountID
	Reason  string
	At      time.Time
}

// DecisionResult reports the subject after Decide/Override and whether the
// call changed state.
type DecisionResult struct {
	Subject *Subject
	Changed bool
}

// Filter narrows subject listings.
type Filter struct {
	Status ApprovalStatus
	Type   SubjectType
	Limit  int
}
