// Package middleware throttles unauthenticated endpoints per client IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"castline/internal/platform/metrics"
	"castline/internal/ratelimit/models"
	"castline/pkg/platform/circuit"
	"castline/pkg/platform/httputil"
	"castline/pkg/requestcontext"
)

// Store checks and records one request against a bucket.
type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// Middleware limits requests through a primary store. When the primary
// keeps failing the breaker opens and checks go to the in-process fallback
// until the primary recovers; responses then carry
// X-RateLimit-Status: degraded.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithFallback sets the store used while the primary is unavailable.
// Without one, requests pass unthrottled on primary errors.
func WithFallback(store Store) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithDisabled turns limiting off, for local demos.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(primary Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit throttles requests of one endpoint class by client IP.
func (m *Middleware) Limit(class string, limit models.Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled || limit.Requests <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, degraded := m.check(ctx, models.Key(class, ip), limit)
			if result == nil {
				next.ServeHTTP(w, r)
				return
			}
			addHeaders(w, result, degraded)
			if !result.Allowed {
				m.metrics.IncRateLimited(class)
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"client_ip", ip,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests from this address. Please try again later.",
					RetryAfter: result.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check returns nil when no store could answer; the request is then let
// through rather than failing the caller for an infrastructure fault.
func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.Result, bool) {
	if m.breaker.Allow() {
		result, err := m.primary.Allow(ctx, key, limit)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered")
			}
			if !m.breaker.IsOpen() {
				return result, false
			}
		} else {
			_, change := m.breaker.RecordFailure()
			if change.Opened {
				m.logger.WarnContext(ctx, "rate limit store failing, switching to fallback", "error", err)
			} else {
				m.logger.ErrorContext(ctx, "rate limit check failed", "error", err)
			}
		}
	}
	if m.fallback == nil {
		return nil, true
	}
	m.metrics.IncRateLimitFallback()
	result, err := m.fallback.Allow(ctx, key, limit)
	if err != nil {
		m.logger.ErrorContext(ctx, "fallback rate limit check failed", "error", err)
		return nil, true
	}
	return result, true
}

func addHeaders(w http.ResponseWriter, result *models.Result, degraded bool) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
