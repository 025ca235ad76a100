package e2e

import (
	"github.com/cucumber/godog"

	"castline/e2e/steps/common"
	"castline/e2e/steps/onboarding"
	"castline/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (principals, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register payment, token and approval steps
	onboarding.RegisterSteps(ctx, tc)

	// Register token endpoint throttling steps
	ratelimit.RegisterSteps(ctx, tc)
}
