package e2e

import (
	"testing"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name: "verification",
		// Called once per scenario, so every scenario gets a fresh pipeline.
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, NewTestContext())
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
