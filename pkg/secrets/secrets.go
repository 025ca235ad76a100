// Package secrets generates registration tokens and protects the webhook
// shared secret.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "castline/pkg/domain-errors"
)

// TokenBytes is the entropy of a generated token before encoding.
const TokenBytes = 32

// Generate returns TokenBytes of randomness as unpadded URL-safe base64, a
// 43 character string that fits the redeem request's length limit.
func Generate() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash bcrypts a secret for WEBHOOK_SECRET_HASH.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret must be at most 72 bytes")
	case err != nil:
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify returns an unauthorized domain error when secret does not match
// hash.
func Verify(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return dErrors.New(dErrors.CodeUnauthorized, "invalid secret")
	case err != nil:
		return fmt.Errorf("verify secret: %w", err)
	}
	return nil
}

// Equal compares two plaintext secrets in constant time. An empty expected
// value never matches.
func Equal(presented, expected string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
