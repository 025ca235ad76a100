// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the root configuration for the onboarding server.
type Config struct {
	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	AMQP         AMQPConfig
	Auth         AuthConfig
	Stripe       StripeConfig
	Onboarding   OnboardingConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CASTLINE_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"CASTLINE_LOG_LEVEL" envDefault:"info"`
	RequestTimeout  time.Duration `env:"CASTLINE_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"CASTLINE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig selects PostgreSQL persistence. Empty URL means in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"DATABASE_MIGRATE" envDefault:"true"`
}

// RedisConfig enables the Redis webhook ledger. Empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	WebhookTTL   time.Duration `env:"REDIS_WEBHOOK_TTL" envDefault:"720h"`
}

// KafkaConfig enables the audit outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic   string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"castline.audit"`
	Partitions   int32         `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	Replication  int16         `env:"KAFKA_AUDIT_REPLICATION" envDefault:"1"`
	PollInterval time.Duration `env:"KAFKA_RELAY_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"KAFKA_RELAY_BATCH_SIZE" envDefault:"100"`
}

// AMQPConfig enables RabbitMQ notification delivery. Empty URL logs instead.
type AMQPConfig struct {
	URL   string `env:"AMQP_URL"`
	Queue string `env:"AMQP_NOTIFICATION_QUEUE" envDefault:"castline.notifications"`
}

// AuthConfig holds principal verification and capability bindings.
type AuthConfig struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"castline"`
	// RoleBindings maps a role to "|"-separated capabilities,
	// e.g. "reviewer=subjects:adjudicate|subjects:read,finance=payments:manage".
	RoleBindings map[string]string `env:"ROLE_BINDINGS" envKeyValSeparator:"=" envDefault:"admin=subjects:adjudicate|subjects:override|subjects:read|payments:manage|payments:read|tokens:issue"`
	// WebhookSecretHash is a bcrypt hash of the generic webhook shared secret
	// and takes precedence over WebhookSecret.
	WebhookSecretHash string `env:"WEBHOOK_SECRET_HASH"`
	WebhookSecret     string `env:"WEBHOOK_SECRET"`
}

// StripeConfig enables the Stripe gateway. Empty key uses the local gateway.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string `env:"STRIPE_SUCCESS_URL" envDefault:"http://localhost:3000/registration/success"`
	CancelURL     string `env:"STRIPE_CANCEL_URL" envDefault:"http://localhost:3000/registration/cancelled"`
	// BreakerFailures consecutive checkout failures open the circuit for
	// BreakerCooldown.
	BreakerFailures int           `env:"STRIPE_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"STRIPE_BREAKER_COOLDOWN" envDefault:"30s"`
}

// OnboardingConfig holds plan pricing and token lifetimes.
type OnboardingConfig struct {
	Currency   string          `env:"PLAN_CURRENCY" envDefault:"usd"`
	GuidePrice decimal.Decimal `env:"PLAN_PRICE_GUIDE" envDefault:"50.00"`
	GoldPrice  decimal.Decimal `env:"PLAN_PRICE_GOLD" envDefault:"200.00"`
	// TokenTTL bounds registration tokens for paid plans. Zero disables expiry.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	// MasterTokenTTL bounds tokens for negotiated master plans. Zero disables expiry.
	MasterTokenTTL time.Duration `env:"MASTER_TOKEN_TTL" envDefault:"0s"`
	CheckoutURL    string        `env:"LOCAL_CHECKOUT_URL" envDefault:"http://localhost:8080/checkout"`
}

// NotificationConfig tunes the notification worker.
type NotificationConfig struct {
	PollInterval   time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"1s"`
	BatchSize      int           `env:"NOTIFY_BATCH_SIZE" envDefault:"50"`
	MaxAttempts    int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"8"`
	InitialBackoff time.Duration `env:"NOTIFY_INITIAL_BACKOFF" envDefault:"2s"`
	MaxBackoff     time.Duration `env:"NOTIFY_MAX_BACKOFF" envDefault:"10m"`
	SendTimeout    time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"10s"`
	QuickRetries   uint64        `env:"NOTIFY_QUICK_RETRIES" envDefault:"2"`
}

// RateLimitConfig bounds unauthenticated token endpoints per client IP.
type RateLimitConfig struct {
	Disabled      bool          `env:"RATE_LIMIT_DISABLED" envDefault:"false"`
	TokenRequests int           `env:"RATE_LIMIT_TOKEN_REQUESTS" envDefault:"20"`
	TokenWindow   time.Duration `env:"RATE_LIMIT_TOKEN_WINDOW" envDefault:"1m"`
	SweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"5m"`
}

// Load parses the full configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Onboarding.GuidePrice.IsNegative() || c.Onboarding.GoldPrice.IsNegative() {
		return fmt.Errorf("plan prices must be non-negative")
	}
	if c.Onboarding.TokenTTL < 0 || c.Onboarding.MasterTokenTTL < 0 {
		return fmt.Errorf("token TTLs must be non-negative")
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if !c.RateLimit.Disabled && (c.RateLimit.TokenRequests < 1 || c.RateLimit.TokenWindow <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}
	return nil
}
