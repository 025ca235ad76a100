package models

import (
	"slices"

	"github.com/shopspring/decimal"

	dErrors "castline/pkg/domain-errors"
)

// EventKind names an input to the payment state machine.
type EventKind string

const (
	EventCheckoutCreated  EventKind = "checkout_created"
	EventGatewaySucceeded EventKind = "gateway_succeeded"
	EventGatewayFailed    EventKind = "gateway_failed"
	EventGatewayExpired   EventKind = "gateway_expired"
	EventAdminActivated   EventKind = "admin_activated"
	EventAdminRejected    EventKind = "admin_rejected"
	EventAdminDemoted     EventKind = "admin_demoted"
)

// ParseGatewayOutcome maps a webhook status to its event kind.
func ParseGatewayOutcome(status string) (EventKind, error) {
	switch status {
	case "succeeded":
		return EventGatewaySucceeded, nil
	case "failed":
		return EventGatewayFailed, nil
	case "expired":
		return EventGatewayExpired, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of succeeded, failed, expired")
	}
}

// Event is one input to the state machine with its payload.
type Event struct {
	Kind EventKind
	// Amount is the negotiated final amount for EventAdminActivated.
	Amount decimal.Decimal
	// DemoteTo is rejected or cancelled for EventAdminDemoted.
	DemoteTo Status
	Reason   string
}

type rule struct {
	from []Status
	to   func(plan PlanType, ev Event) Status
}

func fixed(s Status) func(PlanType, Event) Status {
	return func(PlanType, Event) Status { return s }
}

// transitions is the canonical payment state machine. Every edge the system
// can take is listed here and nowhere else.
var transitions = map[EventKind]rule{
	EventCheckoutCreated: {
		from: []Status{StatusPending},
		to:   fixed(StatusPending),
	},
	EventGatewaySucceeded: {
		from: []Status{StatusPending},
		to:   func(plan PlanType, _ Event) Status { return plan.GoodStatus() },
	},
	EventGatewayFailed: {
		from: []Status{StatusPending},
		to:   fixed(StatusCancelled),
	},
	EventGatewayExpired: {
		from: []Status{StatusPending},
		to:   fixed(StatusCancelled),
	},
	EventAdminActivated: {
		from: []Status{StatusPendingNegotiation},
		to:   fixed(StatusActive),
	},
	EventAdminRejected: {
		from: []Status{StatusPendingNegotiation},
		to:   fixed(StatusRejected),
	},
	EventAdminDemoted: {
		from: []Status{StatusActive, StatusPaid, StatusSucceeded},
		to:   func(_ PlanType, ev Event) Status { return ev.DemoteTo },
	},
}

// Transition is a resolved edge: the store applies it as a conditional
// update guarded by Sources.
type Transition struct {
	Event   EventKind
	Sources []Status
	Target  Status
}

// Resolve validates the event payload and returns the edge it would take.
// It does not consult the current status; the store guard does that.
func Resolve(plan PlanType, ev Event) (Transition, error) {
	r, ok := transitions[ev.Kind]
	if !ok {
		return Transition{}, dErrors.New(dErrors.CodeInvalidTransition, "unknown payment event "+string(ev.Kind))
	}
	switch ev.Kind {
	case EventAdminActivated:
		if !ev.Amount.IsPositive() {
			return Transition{}, dErrors.New(dErrors.CodeValidation, "final amount must be greater than zero")
		}
	case EventAdminDemoted:
		if !ev.DemoteTo.IsRevoked() {
			return Transition{}, dErrors.New(dErrors.CodeValidation, "demotion target must be rejected or cancelled")
		}
	}
	target := r.to(plan, ev)
	if target == "" {
		return Transition{}, dErrors.New(dErrors.CodeInvalidTransition, "plan has no target for "+string(ev.Kind))
	}
	return Transition{Event: ev.Kind, Sources: slices.Clone(r.from), Target: target}, nil
}

// CanTransition reports the target for ev from current, if the edge exists.
func CanTransition(plan PlanType, current Status, ev Event) (Status, bool) {
	t, err := Resolve(plan, ev)
	if err != nil || !slices.Contains(t.Sources, current) {
		return "", false
	}
	return t.Target, true
}

// IsGateway reports whether the event is reported by the payment gateway.
func (k EventKind) IsGateway() bool {
	switch k {
	case EventGatewaySucceeded, EventGatewayFailed, EventGatewayExpired:
		return true
	}
	return false
}

// ClassifyUnchanged explains a conditional update that matched no row. It
// is an idempotent replay only when the record sits in the target and got
// there through the same event. Gateway failure and expiry count as the
// same outcome. Rows without a recorded event compare on status alone.
func ClassifyUnchanged(current *Payment, t Transition) error {
	if current.Status == t.Target && sameOrigin(current.StatusEvent, t.Event) {
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidTransition,
		"payment in status "+string(current.Status)+" cannot move to "+string(t.Target)+" by "+string(t.Event))
}

func sameOrigin(recorded, ev EventKind) bool {
	if recorded == "" || ev == "" || recorded == ev {
		return true
	}
	return recorded.IsGateway() && ev.IsGateway()
}
