// Package strategy implements the six structured multi-agent algorithms
// (hierarchical, round-robin, consensus, auction, pipeline, debate) that
// drive agent interaction through a coordinator.Coordinator. Each is a
// tagged variant with its own configuration and execute behavior, not a
// class hierarchy: dispatch happens by the Strategy each one is, not by
// inheritance.
package strategy

import (
	"context"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
)

// Options is the input to Strategy.Execute.
type Options struct {
	Input string
}

// Result is what every strategy produces: a final textual output,
// per-agent results keyed by a strategy-defined key, an optional
// structured payload, and strategy-specific byproducts (bids, votes,
// pipeline stage outputs, debate transcript...).
type Result struct {
	Output       string
	AgentResults map[string]agent.RunResult
	Payload      interface{}
	Byproducts   map[string]interface{}
}

// Strategy is the common contract every orchestration algorithm satisfies.
type Strategy interface {
	// Name identifies the strategy for logging and events.
	Name() string
	// Execute drives the configured protocol to completion and returns
	// the aggregated Result.
	Execute(ctx context.Context, opts Options) (Result, error)
}

// newResult is a small helper shared by strategy implementations.
func newResult(output string) Result {
	return Result{
		Output:       output,
		AgentResults: make(map[string]agent.RunResult),
		Byproducts:   make(map[string]interface{}),
	}
}

// base holds the coordinator reference every strategy needs.
type base struct {
	coord *coordinator.Coordinator
}
