package service

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	paymentmodels "castline/internal/payment/models"
	subjectmodels "castline/internal/subject/models"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	"castline/pkg/platform/authz"
	"castline/pkg/requestcontext"
)

// SubmitRequest registers a subject for review.
type SubmitRequest struct {
	Type        subjectmodels.SubjectType
	AccountID   id.AccountID
	Email       string
	DisplayName string
	PaymentID   *id.PaymentID
}

// partnerPlans are the plans that can back a partner registration.
var partnerPlans = []paymentmodels.PlanType{paymentmodels.PlanGold, paymentmodels.PlanMaster}

// SubmitSubject validates the registration against its payment and stores
// the subject as pending.
func (s *Service) SubmitSubject(ctx context.Context, req SubmitRequest) (_ *subjectmodels.Subject, err error) {
	ctx, span := s.startSpan(ctx, "SubmitSubject", attribute.String("subject.type", string(req.Type)))
	defer func() { endSpan(span, err) }()

	if req.AccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "account_id is required")
	}
	if principal := requestcontext.AccountID(ctx); !principal.IsNil() && principal != req.AccountID {
		return nil, dErrors.New(dErrors.CodeForbidden, "subjects can only be submitted for the caller's own account")
	}
	if req.PaymentID != nil {
		payment, err := s.payments.Get(ctx, *req.PaymentID)
		if err != nil {
			return nil, err
		}
		if err := checkSubmissionPayment(req.Type, req.AccountID, payment); err != nil {
			return nil, err
		}
	}

	subject, err := subjectmodels.NewSubject(id.NewSubjectID(), req.Type, req.AccountID, req.Email, req.DisplayName, req.PaymentID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.subjects.Submit(ctx, subject); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject.id", subject.ID.String()))
	return subject, nil
}

func checkSubmissionPayment(subjectType subjectmodels.SubjectType, account id.AccountID, payment *paymentmodels.Payment) error {
	if !payment.RedeemedBy(account) {
		return dErrors.New(dErrors.CodeValidation, "payment has not been redeemed by this account")
	}
	switch subjectType {
	case subjectmodels.SubjectTypePartner:
		if !slices.Contains(partnerPlans, payment.PlanType) {
			return dErrors.New(dErrors.CodeValidation, "partner registration requires a gold or master plan")
		}
		if !payment.Status.IsGood() && payment.Status != paymentmodels.StatusPendingNegotiation {
			return dErrors.New(dErrors.CodeValidation, "partner payment is not in an activating state")
		}
	case subjectmodels.SubjectTypeGuide:
		if payment.PlanType != paymentmodels.PlanGuide {
			return dErrors.New(dErrors.CodeValidation, "guide registration requires a guide plan")
		}
	}
	return nil
}

// DecideSubject applies an administrative decision as the caller.
func (s *Service) DecideSubject(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, reason string) (_ *subjectmodels.DecisionResult, err error) {
	ctx, span := s.startSpan(ctx, "DecideSubject",
		attribute.String("subject.id", subjectID.String()),
		attribute.String("decision.outcome", string(outcome)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityAdjudicateSubjects); err != nil {
		return nil, err
	}
	result, err := s.subjects.Decide(ctx, subjectID, outcome, requestcontext.AccountID(ctx), reason)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("decision.changed", result.Changed))
	return result, nil
}

// OverrideSubject flips a terminal decision. The reason is mandatory.
func (s *Service) OverrideSubject(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, reason string) (_ *subjectmodels.DecisionResult, err error) {
	ctx, span := s.startSpan(ctx, "OverrideSubject",
		attribute.String("subject.id", subjectID.String()),
		attribute.String("decision.outcome", string(outcome)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.authorizer.Require(ctx, authz.CapabilityOverrideSubjects); err != nil {
		return nil, err
	}
	return s.subjects.Override(ctx, subjectID, outcome, requestcontext.AccountID(ctx), reason)
}

// GetSubject returns a subject to its owner or to a reader.
func (s *Service) GetSubject(ctx context.Context, subjectID id.SubjectID) (*subjectmodels.Subject, error) {
	subject, err := s.subjects.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOr(ctx, subject.AccountID, authz.CapabilityReadSubjects); err != nil {
		return nil, err
	}
	return subject, nil
}

func (s *Service) ListSubjects(ctx context.Context, filter subjectmodels.Filter) ([]*subjectmodels.Subject, error) {
	if err := s.authorizer.Require(ctx, authz.CapabilityReadSubjects); err != nil {
		return nil, err
	}
	return s.subjects.List(ctx, filter)
}

func (s *Service) requireOwnerOr(ctx context.Context, owner id.AccountID, capability authz.Capability) error {
	if principal := requestcontext.AccountID(ctx); !principal.IsNil() && principal == owner {
		return nil
	}
	return s.authorizer.Require(ctx, capability)
}
