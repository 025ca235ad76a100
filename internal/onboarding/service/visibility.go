package service

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	paymentmodels "castline/internal/payment/models"
	subjectmodels "castline/internal/subject/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/authz"
	"castline/pkg/platform/tx"
)

// VisibilityReport explains whether a subject may be listed publicly.
type VisibilityReport struct {
	SubjectID         id.SubjectID  `json:"subject_id"`
	Visible           bool          `json:"visible"`
	ApprovalSatisfied bool          `json:"approval_satisfied"`
	PaymentSatisfied  bool          `json:"payment_satisfied"`
	PaymentID         *id.PaymentID `json:"payment_id,omitempty"`
	Reasons           []string      `json:"reasons"`
}

// Visibility reads the subject and its account's payments from one
// snapshot. A subject is visible only when approved and, for paid subject
// types, backed by a redeemed payment in a good state.
func (s *Service) Visibility(ctx context.Context, subjectID id.SubjectID) (_ *VisibilityReport, err error) {
	ctx, span := s.startSpan(ctx, "Visibility", attribute.String("subject.id", subjectID.String()))
	defer func() { endSpan(span, err) }()

	var (
		subject  *subjectmodels.Subject
		payments []*paymentmodels.Payment
	)
	err = s.runner.RunInTx(ctx, tx.SnapshotOptions, func(ctx context.Context) error {
		var err error
		if subject, err = s.subjects.Get(ctx, subjectID); err != nil {
			return err
		}
		if payments, err = s.payments.ListByAccount(ctx, subject.AccountID); err != nil {
			return err
		}
		if subject.PaymentID != nil && !containsPayment(payments, *subject.PaymentID) {
			referenced, err := s.payments.Get(ctx, *subject.PaymentID)
			if err != nil {
				return err
			}
			payments = append(payments, referenced)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOr(ctx, subject.AccountID, authz.CapabilityReadSubjects); err != nil {
		return nil, err
	}

	report := evaluateVisibility(subject, payments)
	span.SetAttributes(attribute.Bool("subject.visible", report.Visible))
	return report, nil
}

func evaluateVisibility(subject *subjectmodels.Subject, payments []*paymentmodels.Payment) *VisibilityReport {
	report := &VisibilityReport{SubjectID: subject.ID, Reasons: []string{}}

	switch subject.Status {
	case subjectmodels.ApprovalApproved:
		report.ApprovalSatisfied = true
	case subjectmodels.ApprovalRejected:
		report.Reasons = append(report.Reasons, "subject was rejected")
	default:
		report.Reasons = append(report.Reasons, "subject is awaiting approval")
	}

	plans := requiredPlans(subject.Type)
	if plans == nil {
		report.PaymentSatisfied = true
	} else if p := activatingPayment(subject, payments, plans); p != nil {
		report.PaymentSatisfied = true
		report.PaymentID = &p.ID
	} else {
		report.Reasons = append(report.Reasons, "no redeemed "+planList(plans)+" payment in a good state")
	}

	report.Visible = report.ApprovalSatisfied && report.PaymentSatisfied
	return report
}

// requiredPlans returns nil for subject types that need no payment.
func requiredPlans(t subjectmodels.SubjectType) []paymentmodels.PlanType {
	switch t {
	case subjectmodels.SubjectTypeGuide:
		return []paymentmodels.PlanType{paymentmodels.PlanGuide}
	case subjectmodels.SubjectTypePartner:
		return partnerPlans
	default:
		return nil
	}
}

// activatingPayment prefers the payment the subject references.
func activatingPayment(subject *subjectmodels.Subject, payments []*paymentmodels.Payment, plans []paymentmodels.PlanType) *paymentmodels.Payment {
	satisfies := func(p *paymentmodels.Payment) bool {
		return slices.Contains(plans, p.PlanType) && p.RedeemedBy(subject.AccountID) && p.Status.IsGood()
	}
	if subject.PaymentID != nil {
		for _, p := range payments {
			if p.ID == *subject.PaymentID {
				if satisfies(p) {
					return p
				}
				if subject.Type == subjectmodels.SubjectTypePartner {
					return nil
				}
			}
		}
	}
	for _, p := range payments {
		if satisfies(p) {
			return p
		}
	}
	return nil
}

func containsPayment(payments []*paymentmodels.Payment, paymentID id.PaymentID) bool {
	return slices.ContainsFunc(payments, func(p *paymentmodels.Payment) bool { return p.ID == paymentID })
}

func planList(plans []paymentmodels.PlanType) string {
	if len(plans) == 1 {
		return string(plans[0])
	}
	return string(plans[0]) + "/" + string(plans[1])
}
