package onboarding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	Do(method, path string, body any, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetWebhookSecret() string
	Remember(key, value string)
	Recall(key string) string
	Expand(s string) string
}

// RegisterSteps registers payment, token and approval step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &onboardingSteps{tc: tc}

	// Payments
	ctx.Step(`^I start a "([^"]*)" payment for "([^"]*)"$`, steps.startPayment)
	ctx.Step(`^the gateway reports event "([^"]*)" as "([^"]*)" for the payment$`, steps.gatewayReports)
	ctx.Step(`^the gateway reports event "([^"]*)" as "([^"]*)" with secret "([^"]*)"$`, steps.gatewayReportsWithSecret)
	ctx.Step(`^I reject the payment because "([^"]*)"$`, steps.rejectPayment)

	// Registration tokens
	ctx.Step(`^I request the registration token for the payment$`, steps.requestToken)
	ctx.Step(`^I check the registration token$`, steps.checkToken)
	ctx.Step(`^I redeem the registration token for "([^"]*)"$`, steps.redeemToken)

	// Subjects
	ctx.Step(`^"([^"]*)" submits a "([^"]*)" profile( with the payment)?$`, steps.submitProfile)
	ctx.Step(`^I decide the subject as "([^"]*)"$`, steps.decideSubject)
	ctx.Step(`^I check the subject visibility$`, steps.checkVisibility)
}

type onboardingSteps struct {
	tc TestContext
}

func (s *onboardingSteps) expectStatus(expected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *onboardingSteps) remember(field, name string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Remember(name, fmt.Sprint(value))
	return nil
}

func (s *onboardingSteps) startPayment(ctx context.Context, plan, email string) error {
	body := map[string]any{
		"plan_type":  plan,
		"payer_info": map[string]string{"email": email},
	}
	if err := s.tc.POST("/payments", body); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusCreated); err != nil {
		return err
	}
	return s.remember("payment.id", "payment")
}

func (s *onboardingSteps) gatewayReports(ctx context.Context, eventID, status string) error {
	return s.gatewayReportsWithSecret(ctx, eventID, status, s.tc.GetWebhookSecret())
}

func (s *onboardingSteps) gatewayReportsWithSecret(ctx context.Context, eventID, status, secret string) error {
	body := map[string]string{
		"gateway_event_id":  s.tc.Expand(eventID),
		"payment_reference": s.tc.Recall("payment"),
		"status":            status,
	}
	return s.tc.Do(http.MethodPost, "/webhooks/payment", body, map[string]string{"X-Webhook-Secret": secret})
}

func (s *onboardingSteps) rejectPayment(ctx context.Context, reason string) error {
	return s.tc.POST("/payments/{payment}/reject", map[string]string{"reason": reason})
}

func (s *onboardingSteps) requestToken(ctx context.Context) error {
	if err := s.tc.POST("/payments/{payment}/token", nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusOK {
		return nil
	}
	return s.remember("token", "token")
}

func (s *onboardingSteps) checkToken(ctx context.Context) error {
	return s.tc.GET("/registration/tokens/{token}", nil)
}

func (s *onboardingSteps) redeemToken(ctx context.Context, account string) error {
	return s.tc.POST("/registration/redeem", map[string]string{
		"token":      s.tc.Recall("token"),
		"account_id": s.tc.Recall(account),
	})
}

func (s *onboardingSteps) submitProfile(ctx context.Context, account, subjectType, withPayment string) error {
	body := map[string]any{
		"subject_type": subjectType,
		"account_id":   s.tc.Recall(account),
		"email":        account + "@example.com",
		"display_name": account,
	}
	if withPayment != "" {
		body["payment_id"] = s.tc.Recall("payment")
	}
	if err := s.tc.POST("/subjects", body); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusCreated); err != nil {
		return err
	}
	return s.remember("id", "subject")
}

func (s *onboardingSteps) decideSubject(ctx context.Context, outcome string) error {
	return s.tc.POST("/subjects/{subject}/decision", map[string]string{"outcome": outcome})
}

func (s *onboardingSteps) checkVisibility(ctx context.Context) error {
	return s.tc.GET("/subjects/{subject}/visibility", nil)
}
