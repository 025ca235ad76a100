package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 168*time.Hour, cfg.Onboarding.TokenTTL)
	assert.Equal(t, time.Duration(0), cfg.Onboarding.MasterTokenTTL)
	assert.True(t, decimal.RequireFromString("50").Equal(cfg.Onboarding.GuidePrice))
	assert.Contains(t, cfg.Auth.RoleBindings, "admin")
	assert.Equal(t, 20, cfg.RateLimit.TokenRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.TokenWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_TTL", "24h")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ROLE_BINDINGS", "reviewer=subjects:adjudicate,finance=payments:manage|tokens:issue")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Onboarding.TokenTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "payments:manage|tokens:issue", cfg.Auth.RoleBindings["finance"])
}

func TestLoadErrors(t *testing.T) {
	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("TOKEN_TTL", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "parse env:"))
	})

	t.Run("stripe key without webhook secret", func(t *testing.T) {
		t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("zero rate limit budget", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_TOKEN_REQUESTS", "0")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("zero budget is fine when disabled", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_TOKEN_REQUESTS", "0")
		t.Setenv("RATE_LIMIT_DISABLED", "true")
		_, err := Load()
		require.NoError(t, err)
	})
}
