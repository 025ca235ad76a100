package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "castline/internal/jwt_token"
	"castline/internal/notification/notifier"
	notificationsvc "castline/internal/notification/service"
	onboardinghandler "castline/internal/onboarding/handler"
	onboarding "castline/internal/onboarding/service"
	"castline/internal/payment/gateway"
	"castline/internal/payment/gateway/local"
	stripegw "castline/internal/payment/gateway/stripe"
	paymentsvc "castline/internal/payment/service"
	"castline/internal/platform/config"
	"castline/internal/platform/httpserver"
	"castline/internal/platform/logger"
	"castline/internal/platform/metrics"
	ratelimit "castline/internal/ratelimit/middleware"
	ratelimitmodels "castline/internal/ratelimit/models"
	"castline/internal/ratelimit/store/bucket"
	registration "castline/internal/registration/service"
	subjectsvc "castline/internal/subject/service"
	"castline/pkg/platform/audit/publisher"
	"castline/pkg/platform/authz"
	"castline/pkg/platform/circuit"
	"castline/pkg/platform/httputil"
	"castline/pkg/platform/middleware/webhook"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("castline exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.New()

	infra, err := openInfra(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer infra.Close()

	auditPublisher := publisher.NewPublisher(infra.auditStore, publisher.WithLogger(log), publisher.WithAsyncBuffer(1024))
	defer auditPublisher.Close()

	dispatcher := notificationsvc.NewDispatcher(infra.notifications,
		notificationsvc.WithLogger(log),
		notificationsvc.WithMetrics(m),
		notificationsvc.WithAuditPublisher(auditPublisher),
	)

	subjects, err := subjectsvc.New(infra.subjects, dispatcher,
		subjectsvc.WithLogger(log),
		subjectsvc.WithMetrics(m),
		subjectsvc.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	gw, verifier := buildGateway(cfg, log)
	payments, err := paymentsvc.New(infra.payments, gw, paymentsvc.Prices{
		Currency: cfg.Onboarding.Currency,
		Guide:    cfg.Onboarding.GuidePrice,
		Gold:     cfg.Onboarding.GoldPrice,
	},
		paymentsvc.WithLogger(log),
		paymentsvc.WithMetrics(m),
		paymentsvc.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	tokens, err := registration.New(infra.payments, dispatcher, registration.Config{
		TokenTTL:       cfg.Onboarding.TokenTTL,
		MasterTokenTTL: cfg.Onboarding.MasterTokenTTL,
	},
		registration.WithLogger(log),
		registration.WithMetrics(m),
		registration.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	bindings, err := authz.ParseBindings(cfg.Auth.RoleBindings)
	if err != nil {
		return err
	}
	orchestrator, err := onboarding.New(subjects, payments, tokens, infra.ledger, authz.NewRoleAuthorizer(bindings),
		onboarding.WithLogger(log),
		onboarding.WithMetrics(m),
		onboarding.WithAuditPublisher(auditPublisher),
		onboarding.WithTxRunner(infra.runner),
	)
	if err != nil {
		return err
	}

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer))
	handlerOpts := []onboardinghandler.Option{onboardinghandler.WithRequestTimeout(cfg.Server.RequestTimeout)}
	switch {
	case cfg.Auth.WebhookSecretHash != "":
		handlerOpts = append(handlerOpts, onboardinghandler.WithWebhookSecret(webhook.HashedSecret(cfg.Auth.WebhookSecretHash)))
	case cfg.Auth.WebhookSecret != "":
		handlerOpts = append(handlerOpts, onboardinghandler.WithWebhookSecret(webhook.PlainSecret(cfg.Auth.WebhookSecret)))
	default:
		log.Warn("no webhook secret configured; POST /webhooks/payment is disabled")
	}
	if verifier != nil {
		handlerOpts = append(handlerOpts, onboardinghandler.WithStripeVerifier(verifier))
	}
	limiter, localBuckets := buildTokenLimiter(cfg, infra, log, m)
	handlerOpts = append(handlerOpts, onboardinghandler.WithTokenLimiter(
		limiter.Limit("registration_token", ratelimitmodels.Limit{Requests: cfg.RateLimit.TokenRequests, Window: cfg.RateLimit.TokenWindow}),
	))

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := infra.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	onboardinghandler.New(orchestrator, log, m, jwtValidator, handlerOpts...).Register(router)

	notifierImpl, closeNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()
	worker := notificationsvc.NewWorker(infra.notifications, notifierImpl, notificationsvc.WorkerConfig{
		PollInterval:   cfg.Notification.PollInterval,
		BatchSize:      cfg.Notification.BatchSize,
		MaxAttempts:    cfg.Notification.MaxAttempts,
		InitialBackoff: cfg.Notification.InitialBackoff,
		MaxBackoff:     cfg.Notification.MaxBackoff,
		SendTimeout:    cfg.Notification.SendTimeout,
		QuickRetries:   cfg.Notification.QuickRetries,
	},
		notificationsvc.WithLogger(log),
		notificationsvc.WithMetrics(m),
		notificationsvc.WithAuditPublisher(auditPublisher),
	)

	srv := httpserver.New(cfg.Server, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting castline", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		sweepBuckets(gctx, localBuckets, cfg.RateLimit)
		return nil
	})
	if infra.relay != nil {
		relay := infra.relay
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	return g.Wait()
}

// buildTokenLimiter prefers Redis so limits hold across replicas; the local
// buckets serve as primary without Redis and as fallback with it.
func buildTokenLimiter(cfg *config.Config, in *infra, log *slog.Logger, m *metrics.Metrics) (*ratelimit.Middleware, *bucket.InMemory) {
	local := bucket.NewInMemory()
	opts := []ratelimit.Option{ratelimit.WithMetrics(m), ratelimit.WithDisabled(cfg.RateLimit.Disabled)}
	if in.redis == nil {
		return ratelimit.New(local, log, opts...), local
	}
	opts = append(opts, ratelimit.WithFallback(local))
	return ratelimit.New(bucket.NewRedis(in.redis.Client), log, opts...), local
}

func sweepBuckets(ctx context.Context, buckets *bucket.InMemory, cfg config.RateLimitConfig) {
	if cfg.Disabled || cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buckets.Sweep(cfg.TokenWindow)
		}
	}
}

func buildGateway(cfg *config.Config, log *slog.Logger) (gateway.Gateway, onboardinghandler.GatewayVerifier) {
	if cfg.Stripe.SecretKey == "" {
		log.Info("using local checkout gateway", "checkout_url", cfg.Onboarding.CheckoutURL)
		return local.New(cfg.Onboarding.CheckoutURL), nil
	}
	log.Info("using stripe checkout gateway")
	breaker := circuit.New("stripe",
		circuit.WithFailureThreshold(cfg.Stripe.BreakerFailures),
		circuit.WithCooldown(cfg.Stripe.BreakerCooldown),
	)
	return gateway.NewGuarded(stripegw.New(cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL), breaker, log),
		stripegw.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
}

func buildNotifier(cfg *config.Config, log *slog.Logger) (notificationsvc.Notifier, func(), error) {
	if cfg.AMQP.URL == "" {
		log.Info("no AMQP broker configured; notifications are logged")
		return notifier.NewLogNotifier(log), func() {}, nil
	}
	n, err := notifier.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Queue)
	if err != nil {
		return nil, nil, err
	}
	log.Info("delivering notifications over AMQP", "queue", cfg.AMQP.Queue)
	return n, func() { _ = n.Close() }, nil
}
