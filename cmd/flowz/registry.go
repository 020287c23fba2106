package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// Scenario is a runnable flow demonstration.
type Scenario interface {
	Name() string
	Description() string
	Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error
}

// allScenarios returns every registered scenario in a consistent order.
func allScenarios() []Scenario {
	return []Scenario{
		&searchScenario{},
		&switchScenario{},
		&retryScenario{},
		&pollScenario{},
		&throttleScenario{},
	}
}

func scenarioByName(name string) (Scenario, bool) {
	for _, sc := range allScenarios() {
		if sc.Name() == name {
			return sc, true
		}
	}
	return nil, false
}
