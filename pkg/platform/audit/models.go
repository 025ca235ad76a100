package audit

import (
	"context"
	"time"

	id "castline/pkg/domain"
)

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers decisions with business or legal weight:
	// approvals, overrides, payment demotions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers failed redemptions and rejected webhooks.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services to capture onboarding actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// AccountID is the account the event concerns, when known.
	AccountID id.AccountID
	// Subject is the entity the action touched (subject or payment id).
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is the administrator or system component that acted.
	ActorID     string
	ClientLabel string
}

type AuditEvent string

const (
	EventSubjectSubmitted  AuditEvent = "subject_submitted"
	EventSubjectApproved   AuditEvent = "subject_approved"
	EventSubjectRejected   AuditEvent = "subject_rejected"
	EventSubjectOverridden AuditEvent = "subject_overridden"

	EventPaymentCreated      AuditEvent = "payment_created"
	EventCheckoutCreated     AuditEvent = "checkout_created"
	EventPaymentTransitioned AuditEvent = "payment_transitioned"
	EventPaymentActivated    AuditEvent = "payment_activated"
	EventPaymentRejected     AuditEvent = "payment_rejected"
	EventPaymentDemoted      AuditEvent = "payment_demoted"
	EventWebhookDuplicate    AuditEvent = "webhook_duplicate"
	EventWebhookRejected     AuditEvent = "webhook_rejected"

	EventTokenIssued       AuditEvent = "registration_token_issued"
	EventTokenRedeemed     AuditEvent = "registration_token_redeemed"
	EventTokenRedeemFailed AuditEvent = "registration_token_redeem_failed"

	EventNotificationFailed AuditEvent = "notification_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSubjectApproved:   CategoryCompliance,
	EventSubjectRejected:   CategoryCompliance,
	EventSubjectOverridden: CategoryCompliance,
	EventPaymentActivated:  CategoryCompliance,
	EventPaymentRejected:   CategoryCompliance,
	EventPaymentDemoted:    CategoryCompliance,
	EventTokenRedeemed:     CategoryCompliance,

	EventTokenRedeemFailed: CategorySecurity,
	EventWebhookRejected:   CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
