package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	MintToken(accountID string, roles ...string) (string, error)
	SetBearer(token string)
	ClearBearer()
	Remember(key, value string)
	Recall(key string) string
}

// RegisterSteps registers principal, request and assertion steps shared by
// every feature.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the castline server is running$`, steps.serverIsRunning)
	ctx.Step(`^a new account "([^"]*)"$`, steps.newAccount)
	ctx.Step(`^I am authenticated as "([^"]*)"(?: with role "([^"]*)")?$`, steps.authenticatedAs)
	ctx.Step(`^I am anonymous$`, steps.anonymous)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^I remember the response field "([^"]*)" as "([^"]*)"$`, steps.rememberField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serverIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("server unhealthy: %d %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) newAccount(ctx context.Context, name string) error {
	s.tc.Remember(name, uuid.NewString())
	return nil
}

func (s *commonSteps) authenticatedAs(ctx context.Context, name, role string) error {
	var roles []string
	if role != "" {
		roles = append(roles, role)
	}
	token, err := s.tc.MintToken(s.tc.Recall(name), roles...)
	if err != nil {
		return err
	}
	s.tc.SetBearer(token)
	return nil
}

func (s *commonSteps) anonymous(ctx context.Context) error {
	s.tc.ClearBearer()
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	expected = s.tc.Recall(expected)
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s=%q, got %v", field, expected, value)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := value.(bool)
	if !ok || fmt.Sprint(b) != expected {
		return fmt.Errorf("expected %s to be %s, got %v", field, expected, value)
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	value, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if !strings.EqualFold(fmt.Sprint(value), code) {
		return fmt.Errorf("expected error %q, got %v", code, value)
	}
	return nil
}

func (s *commonSteps) rememberField(ctx context.Context, field, name string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Remember(name, fmt.Sprint(value))
	return nil
}
