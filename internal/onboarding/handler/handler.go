// Package handler exposes the onboarding orchestrator over HTTP.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	onboarding "castline/internal/onboarding/service"
	"castline/internal/payment/gateway"
	paymentmodels "castline/internal/payment/models"
	paymentsvc "castline/internal/payment/service"
	"castline/internal/platform/metrics"
	registration "castline/internal/registration/service"
	subjectmodels "castline/internal/subject/models"
	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	"castline/pkg/platform/httputil"
	authmw "castline/pkg/platform/middleware/auth"
	"castline/pkg/platform/middleware/metadata"
	"castline/pkg/platform/middleware/request"
	"castline/pkg/platform/middleware/requesttime"
	"castline/pkg/platform/middleware/webhook"
	"castline/pkg/requestcontext"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBytes       = 64 << 10
	maxListLimit          = 500
)

// Service defines the orchestrator operations the HTTP layer calls.
type Service interface {
	SubmitSubject(ctx context.Context, req onboarding.SubmitRequest) (*subjectmodels.Subject, error)
	DecideSubject(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, reason string) (*subjectmodels.DecisionResult, error)
	OverrideSubject(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, reason string) (*subjectmodels.DecisionResult, error)
	GetSubject(ctx context.Context, subjectID id.SubjectID) (*subjectmodels.Subject, error)
	ListSubjects(ctx context.Context, filter subjectmodels.Filter) ([]*subjectmodels.Subject, error)
	Visibility(ctx context.Context, subjectID id.SubjectID) (*onboarding.VisibilityReport, error)
	CreatePaymentIntent(ctx context.Context, req paymentsvc.CreateRequest) (*paymentsvc.Intent, error)
	ApplyPaymentWebhook(ctx context.Context, ev onboarding.WebhookEvent) (*onboarding.WebhookResult, error)
	ApplyGatewayEvent(ctx context.Context, ev gateway.Event) (*onboarding.WebhookResult, error)
	ActivatePayment(ctx context.Context, paymentID id.PaymentID, amount decimal.Decimal, reason string) (*paymentsvc.Result, error)
	RejectPayment(ctx context.Context, paymentID id.PaymentID, reason string) (*paymentsvc.Result, error)
	DemotePayment(ctx context.Context, paymentID id.PaymentID, to paymentmodels.Status, reason string) (*paymentsvc.Result, error)
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*paymentmodels.Payment, error)
	IssueToken(ctx context.Context, paymentID id.PaymentID) (*registration.Issued, error)
	RedeemToken(ctx context.Context, token string, account id.AccountID) (*paymentmodels.Payment, error)
	ValidateToken(ctx context.Context, token string) (*registration.TokenStatus, error)
}

// GatewayVerifier authenticates and normalises a provider webhook. A nil
// event with a nil error means the event type is not relevant.
type GatewayVerifier interface {
	Parse(payload []byte, signature string) (*gateway.Event, error)
}

// Handler wires onboarding endpoints to the orchestrator.
type Handler struct {
	service        Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	jwtValidator   authmw.JWTValidator
	webhookSecret  webhook.SecretVerifier
	stripeVerifier GatewayVerifier
	requestTimeout time.Duration
	tokenLimiter   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithWebhookSecret enables POST /webhooks/payment.
func WithWebhookSecret(verify webhook.SecretVerifier) Option {
	return func(h *Handler) {
		h.webhookSecret = verify
	}
}

// WithStripeVerifier enables POST /webhooks/stripe.
func WithStripeVerifier(v GatewayVerifier) Option {
	return func(h *Handler) {
		h.stripeVerifier = v
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.requestTimeout = d
	}
}

// WithTokenLimiter throttles the unauthenticated token endpoints.
func WithTokenLimiter(limit func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.tokenLimiter = limit
	}
}

// New constructs an onboarding handler with its dependencies.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator authmw.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		logger:         logger,
		metrics:        metrics,
		jwtValidator:   jwtValidator,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts onboarding endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(request.Recovery(h.logger))
	router.Use(request.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(request.Logger(h.logger))
	router.Use(request.Timeout(h.requestTimeout))
	router.Use(request.Latency(h.metrics))

	router.Group(func(r chi.Router) {
		r.Use(authmw.OptionalAuth(h.jwtValidator, h.logger))
		r.Post("/payments", h.HandleCreatePayment)
		r.Group(func(r chi.Router) {
			if h.tokenLimiter != nil {
				r.Use(h.tokenLimiter)
			}
			r.Post("/registration/redeem", h.HandleRedeemToken)
			r.Get("/registration/tokens/{token}", h.HandleValidateToken)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/subjects", h.HandleSubmitSubject)
		r.Get("/subjects", h.HandleListSubjects)
		r.Get("/subjects/{id}", h.HandleGetSubject)
		r.Post("/subjects/{id}/decision", h.HandleDecideSubject)
		r.Post("/subjects/{id}/override", h.HandleOverrideSubject)
		r.Get("/subjects/{id}/visibility", h.HandleVisibility)
		r.Get("/payments/{id}", h.HandleGetPayment)
		r.Post("/payments/{id}/activate", h.HandleActivatePayment)
		r.Post("/payments/{id}/reject", h.HandleRejectPayment)
		r.Post("/payments/{id}/demote", h.HandleDemotePayment)
		r.Post("/payments/{id}/token", h.HandleIssueToken)
	})

	if h.webhookSecret != nil {
		router.With(webhook.RequireSecret(h.webhookSecret, h.logger)).
			Post("/webhooks/payment", h.HandlePaymentWebhook)
	}
	if h.stripeVerifier != nil {
		router.Post("/webhooks/stripe", h.HandleStripeWebhook)
	}

	r.Mount("/", router)
}

// HandleSubmitSubject handles POST /subjects.
func (h *Handler) HandleSubmitSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitSubjectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	accountID := req.parsedAccountID
	if accountID.IsNil() {
		accountID = requestcontext.AccountID(ctx)
	}

	subject, err := h.service.SubmitSubject(ctx, onboarding.SubmitRequest{
		Type:        req.parsedType,
		AccountID:   accountID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PaymentID:   req.parsedPaymentID,
	})
	if err != nil {
		h.fail(ctx, w, "subject submission failed", err)
		return
	}
	h.logger.InfoContext(ctx, "subject submitted",
		"request_id", requestID,
		"subject_id", subject.ID.String(),
		"subject_type", string(subject.Type),
	)
	httputil.WriteJSON(w, http.StatusCreated, subject)
}

// HandleListSubjects handles GET /subjects?status=&type=&limit=.
func (h *Handler) HandleListSubjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subjects, err := h.service.ListSubjects(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list subjects failed", err)
		return
	}
	if subjects == nil {
		subjects = []*subjectmodels.Subject{}
	}
	httputil.WriteJSON(w, http.StatusOK, SubjectListResponse{Subjects: subjects, Count: len(subjects)})
}

func parseFilter(r *http.Request) (subjectmodels.Filter, error) {
	var filter subjectmodels.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status, err := subjectmodels.ParseApprovalStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if t := q.Get("type"); t != "" {
		subjectType, err := subjectmodels.ParseSubjectType(t)
		if err != nil {
			return filter, err
		}
		filter.Type = subjectType
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// HandleGetSubject handles GET /subjects/{id}.
func (h *Handler) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subject, err := h.service.GetSubject(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "get subject failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subject)
}

// HandleDecideSubject handles POST /subjects/{id}/decision.
func (h *Handler) HandleDecideSubject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.DecideSubject, "subject decided")
}

// HandleOverrideSubject handles POST /subjects/{id}/override.
func (h *Handler) HandleOverrideSubject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.OverrideSubject, "subject overridden")
}

type decideFunc func(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.ApprovalStatus, reason string) (*subjectmodels.DecisionResult, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, decide decideFunc, msg string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := decide(ctx, subjectID, req.parsedOutcome, req.Reason)
	if err != nil {
		h.fail(ctx, w, msg+" failed", err)
		return
	}
	h.logger.InfoContext(ctx, msg,
		"request_id", requestID,
		"subject_id", subjectID.String(),
		"outcome", string(req.parsedOutcome),
		"changed", result.Changed,
	)
	httputil.WriteJSON(w, http.StatusOK, FromDecision(result))
}

// HandleVisibility handles GET /subjects/{id}/visibility.
func (h *Handler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Visibility(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "visibility check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleCreatePayment handles POST /payments.
func (h *Handler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	intent, err := h.service.CreatePaymentIntent(ctx, paymentsvc.CreateRequest{
		PlanType:   req.parsedPlan,
		Amount:     req.Amount,
		Currency:   req.Currency,
		PayerEmail: req.PayerInfo.Email,
		PayerName:  req.PayerInfo.Name,
	})
	if err != nil {
		h.fail(ctx, w, "payment intent failed", err)
		return
	}
	h.logger.InfoContext(ctx, "payment intent created",
		"request_id", requestID,
		"payment_id", intent.Payment.ID.String(),
		"plan_type", string(intent.Payment.PlanType),
		"payment_status", string(intent.Payment.Status),
	)
	httputil.WriteJSON(w, http.StatusCreated, PaymentIntentResponse{Payment: intent.Payment, CheckoutURL: intent.CheckoutURL})
}

// HandleGetPayment handles GET /payments/{id}.
func (h *Handler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payment, err := h.service.GetPayment(ctx, paymentID)
	if err != nil {
		h.fail(ctx, w, "get payment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payment)
}

// HandleActivatePayment handles POST /payments/{id}/activate.
func (h *Handler) HandleActivatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ActivatePaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.ActivatePayment(ctx, paymentID, req.Amount, req.Reason)
	if err != nil {
		h.fail(ctx, w, "payment activation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPaymentResult(result))
}

// HandleRejectPayment handles POST /payments/{id}/reject.
func (h *Handler) HandleRejectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectPaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.RejectPayment(ctx, paymentID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "payment rejection failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPaymentResult(result))
}

// HandleDemotePayment handles POST /payments/{id}/demote.
func (h *Handler) HandleDemotePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DemotePaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.DemotePayment(ctx, paymentID, req.parsedStatus, req.Reason)
	if err != nil {
		h.fail(ctx, w, "payment demotion failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPaymentResult(result))
}

// HandleIssueToken handles POST /payments/{id}/token.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issued, err := h.service.IssueToken(ctx, paymentID)
	if err != nil {
		h.fail(ctx, w, "token issue failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIssued(issued))
}

// HandlePaymentWebhook handles POST /webhooks/payment. Duplicates are 200.
func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PaymentWebhookRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.ApplyPaymentWebhook(ctx, onboarding.WebhookEvent{
		EventID:          req.GatewayEventID,
		PaymentReference: req.PaymentReference,
		Status:           req.Status,
	})
	if err != nil {
		h.fail(ctx, w, "payment webhook failed", err)
		return
	}
	h.logger.InfoContext(ctx, "payment webhook processed",
		"request_id", requestID,
		"gateway_event_id", req.GatewayEventID,
		"applied", result.Applied,
		"duplicate", result.Duplicate,
	)
	httputil.WriteJSON(w, http.StatusOK, FromWebhook(result))
}

// HandleStripeWebhook handles POST /webhooks/stripe.
func (h *Handler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable webhook body"))
		return
	}
	ev, err := h.stripeVerifier.Parse(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		h.logger.WarnContext(ctx, "stripe webhook rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid stripe webhook"))
		return
	}
	if ev == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ignored": true})
		return
	}
	result, err := h.service.ApplyGatewayEvent(ctx, *ev)
	if err != nil {
		h.fail(ctx, w, "stripe webhook failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWebhook(result))
}

// HandleRedeemToken handles POST /registration/redeem.
func (h *Handler) HandleRedeemToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RedeemTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	payment, err := h.service.RedeemToken(ctx, req.Token, req.parsedAccountID)
	if err != nil {
		h.fail(ctx, w, "token redemption failed", err)
		return
	}
	h.logger.InfoContext(ctx, "registration token redeemed",
		"request_id", requestID,
		"payment_id", payment.ID.String(),
		"account_id", req.parsedAccountID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromRedeemed(payment))
}

// HandleValidateToken handles GET /registration/tokens/{token}.
func (h *Handler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" || len(token) > maxTokenLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeTokenNotFound, "registration token not found"))
		return
	}
	status, err := h.service.ValidateToken(ctx, token)
	if err != nil {
		h.fail(ctx, w, "token validation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTokenStatus(status))
}

// fail logs server-side failures at error level and client errors at warn.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
