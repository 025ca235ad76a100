package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"castline/pkg/platform/circuit"
)

// Guarded fails checkout creation fast while the provider keeps failing,
// instead of holding every payer request for a full provider timeout.
type Guarded struct {
	next    Gateway
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Gateway, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%s circuit open: %w", g.breaker.Name(), ErrProviderDown)
	}
	session, err := g.next.CreateCheckout(ctx, req)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "payment provider circuit opened",
				"gateway", g.breaker.Name(),
				"error", err,
			)
		}
		return nil, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "payment provider circuit closed", "gateway", g.breaker.Name())
	}
	return session, nil
}
