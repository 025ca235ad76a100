package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	SetClientIP(ip string)
}

// RegisterSteps registers throttling step definitions for the token endpoints
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I call from a fresh client address$`, steps.freshClientAddress)
	ctx.Step(`^I check token "([^"]*)" (\d+) times$`, steps.checkTokenNTimes)
	ctx.Step(`^at least one response should be throttled$`, steps.someResponseThrottled)
	ctx.Step(`^the throttled response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc         TestContext
	statuses   []int
	retryAfter string
}

// freshClientAddress picks a documentation-range IP so repeated runs do not
// share a bucket.
func (s *ratelimitSteps) freshClientAddress(ctx context.Context) error {
	u := uuid.New()
	s.tc.SetClientIP(fmt.Sprintf("198.51.%d.%d", u[0], u[1]))
	s.statuses = nil
	s.retryAfter = ""
	return nil
}

func (s *ratelimitSteps) checkTokenNTimes(ctx context.Context, token string, times int) error {
	for range times {
		if err := s.tc.GET("/registration/tokens/"+token, nil); err != nil {
			return err
		}
		status := s.tc.GetLastResponseStatus()
		s.statuses = append(s.statuses, status)
		if status == http.StatusTooManyRequests && s.retryAfter == "" {
			s.retryAfter = s.tc.GetLastResponseHeader("Retry-After")
		}
	}
	return nil
}

func (s *ratelimitSteps) someResponseThrottled(ctx context.Context) error {
	for _, status := range s.statuses {
		if status == http.StatusTooManyRequests {
			return nil
		}
	}
	return fmt.Errorf("no request was throttled: %v", s.statuses)
}

func (s *ratelimitSteps) retryAfterPresent(ctx context.Context) error {
	seconds, err := strconv.Atoi(s.retryAfter)
	if err != nil || seconds < 1 {
		return fmt.Errorf("expected positive Retry-After, got %q", s.retryAfter)
	}
	return nil
}
