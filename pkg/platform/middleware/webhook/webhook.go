// Package webhook guards gateway callback routes with a shared secret.
package webhook

import (
	"log/slog"
	"net/http"

	"castline/pkg/requestcontext"
	"castline/pkg/secrets"
)

// HeaderSecret carries the shared secret on generic gateway callbacks.
const HeaderSecret = "X-Webhook-Secret"

// SecretVerifier checks a presented secret.
type SecretVerifier func(presented string) bool

// PlainSecret compares against a configured plaintext secret in constant time.
func PlainSecret(expected string) SecretVerifier {
	return func(presented string) bool {
		return secrets.Equal(presented, expected)
	}
}

// HashedSecret compares against a bcrypt hash of the secret.
func HashedSecret(hash string) SecretVerifier {
	return func(presented string) bool {
		return hash != "" && presented != "" && secrets.Verify(presented, hash) == nil
	}
}

// RequireSecret rejects callbacks whose X-Webhook-Secret does not verify.
func RequireSecret(verify SecretVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verify(r.Header.Get(HeaderSecret)) {
				ctx := r.Context()
				logger.WarnContext(ctx, "webhook secret mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"webhook secret required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
