package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"castline/internal/payment/models"
	id "castline/pkg/domain"
	"castline/pkg/platform/sentinel"
)

// InMemory is a process-local payment store. Each conditional update runs
// under one mutex, matching the guarded UPDATEs of the PostgreSQL store.
type InMemory struct {
	mu       sync.RWMutex
	payments map[id.PaymentID]*models.Payment
}

func NewInMemory() *InMemory {
	return &InMemory{payments: make(map[id.PaymentID]*models.Payment)}
}

func (s *InMemory) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *InMemory) FindByGatewaySession(_ context.Context, sessionID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, p := range s.payments {
		if p.GatewaySessionID == sessionID {
			return clonePayment(p), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.byToken(token); p != nil {
		return clonePayment(p), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByAccount(_ context.Context, account id.AccountID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if p.AccountID != nil && *p.AccountID == account {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Transition moves the payment to t.Target when its status is one of
// t.Sources. Otherwise the current record is returned with changed=false.
func (s *InMemory) Transition(_ context.Context, paymentID id.PaymentID, t models.Transition, u models.TransitionUpdate) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if !slices.Contains(t.Sources, p.Status) {
		return clonePayment(p), false, nil
	}
	p.Status = t.Target
	if t.Event != "" {
		p.StatusEvent = t.Event
	}
	if u.Reason != "" {
		p.StatusReason = u.Reason
	}
	if u.Amount != nil {
		p.Amount = *u.Amount
	}
	if u.Checkout != nil {
		p.GatewaySessionID = u.Checkout.SessionID
		p.GatewayCustomerID = u.Checkout.CustomerID
	}
	p.UpdatedAt = u.At
	return clonePayment(p), true, nil
}

// IssueToken stores a token on an eligible payment that has none yet.
func (s *InMemory) IssueToken(_ context.Context, paymentID id.PaymentID, g models.TokenGrant) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if p.RegistrationToken != "" || !p.Status.IsTokenEligible() {
		return clonePayment(p), false, nil
	}
	if s.byToken(g.Token) != nil {
		return nil, false, sentinel.ErrConflict
	}
	issuedAt := g.IssuedAt
	p.RegistrationToken = g.Token
	p.TokenIssuedAt = &issuedAt
	p.ExpiresAt = cloneTime(g.ExpiresAt)
	p.UpdatedAt = g.IssuedAt
	return clonePayment(p), true, nil
}

// RedeemToken binds the payment to an account when the token is unredeemed,
// unexpired and its payment still eligible.
func (s *InMemory) RedeemToken(_ context.Context, r models.Redemption) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byToken(r.Token)
	if p == nil {
		return nil, false, sentinel.ErrNotFound
	}
	if p.RegistrationCompleted || !p.Status.IsTokenEligible() ||
		(p.ExpiresAt != nil && !r.At.Before(*p.ExpiresAt)) {
		return clonePayment(p), false, nil
	}
	account, at := r.AccountID, r.At
	p.RegistrationCompleted = true
	p.AccountID = &account
	p.RedeemedAt = &at
	p.UpdatedAt = r.At
	return clonePayment(p), true, nil
}

func (s *InMemory) byToken(token string) *models.Payment {
	if token == "" {
		return nil
	}
	for _, p := range s.payments {
		if p.RegistrationToken == token {
			return p
		}
	}
	return nil
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	c.TokenIssuedAt = cloneTime(p.TokenIssuedAt)
	c.ExpiresAt = cloneTime(p.ExpiresAt)
	c.RedeemedAt = cloneTime(p.RedeemedAt)
	if p.AccountID != nil {
		a := *p.AccountID
		c.AccountID = &a
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
