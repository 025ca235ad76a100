// Package store records processed gateway webhook event ids so replays are
// recognised before they reach the payment state machine.
package store

import (
	"context"
	"sync"
	"time"

	id "castline/pkg/domain"
)

// InMemory is a process-local webhook ledger.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]id.PaymentID
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[string]id.PaymentID)}
}

func (s *InMemory) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventID]
	return ok, nil
}

// Record stores eventID and reports whether this call was the first.
func (s *InMemory) Record(_ context.Context, eventID string, paymentID id.PaymentID, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; ok {
		return false, nil
	}
	s.events[eventID] = paymentID
	return true, nil
}
