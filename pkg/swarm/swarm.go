// Package swarm is the thin facade over a Coordinator and a configured
// Strategy: precondition validation, lifecycle events, pause/resume/abort/
// reset, and forwarding access to the event/message/blackboard primitives.
package swarm

import (
	"context"
	"fmt"

	"github.com/shawkym/agentpipe/pkg/blackboard"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/messagebus"
	"github.com/shawkym/agentpipe/pkg/strategy"
)

// Swarm wraps a Coordinator and the Strategy that will drive it.
type Swarm struct {
	coord    *coordinator.Coordinator
	strategy strategy.Strategy
}

// New wraps strat with coord. It performs no validation of its own:
// strategy constructors already raise configuration errors synchronously.
func New(coord *coordinator.Coordinator, strat strategy.Strategy) *Swarm {
	return &Swarm{coord: coord, strategy: strat}
}

// Run executes the configured strategy against input, emitting
// swarm:start/complete/error around it.
func (s *Swarm) Run(ctx context.Context, input string) (strategy.Result, error) {
	s.coord.Events.Emit("swarm:start", map[string]interface{}{
		"swarmId": s.coord.SwarmID, "strategy": s.strategy.Name(),
	}, "")

	result, err := s.strategy.Execute(ctx, strategy.Options{Input: input})
	if err != nil {
		s.coord.Events.Emit("swarm:error", map[string]interface{}{"error": err.Error()}, "")
		return strategy.Result{}, fmt.Errorf("swarm run failed: %w", err)
	}

	s.coord.Events.Emit("swarm:complete", map[string]interface{}{"output": result.Output}, "")
	return result, nil
}

// DryRun validates that the strategy's preconditions are met (it already
// was, at construction) and that the coordinator has at least one agent,
// without invoking any agent.
func (s *Swarm) DryRun() error {
	if len(s.coord.AgentNames()) == 0 {
		return fmt.Errorf("swarm dry run: no agents registered")
	}
	return nil
}

// Pause holds future agent invocations until Resume; invocations already
// running are not interrupted.
func (s *Swarm) Pause() {
	s.coord.Pause()
	s.coord.Events.Emit("swarm:paused", nil, "")
}

// Resume releases a paused swarm.
func (s *Swarm) Resume() {
	s.coord.Resume()
	s.coord.Events.Emit("swarm:resumed", nil, "")
}

// Abort stops the swarm; in-flight invocations are not preempted but no
// further agent calls will be admitted.
func (s *Swarm) Abort() {
	s.coord.Abort()
	s.coord.Events.Emit("swarm:aborted", nil, "")
}

// Reset emits swarm:reset to the current subscribers, then clears every
// primitive (subscriptions and event history included) back to a
// fresh-coordinator state.
func (s *Swarm) Reset() {
	s.coord.Events.Emit("swarm:reset", nil, "")
	s.coord.Reset()
}

// Events returns the underlying event emitter for external subscription.
func (s *Swarm) Events() *events.Emitter { return s.coord.Events }

// Messages returns the underlying message bus.
func (s *Swarm) Messages() *messagebus.Bus { return s.coord.Messages }

// Blackboard returns the underlying blackboard.
func (s *Swarm) Blackboard() *blackboard.Blackboard { return s.coord.Blackboard }

// Coordinator exposes the underlying coordinator for advanced callers
// (e.g. cmd/run.go's metrics wiring and state saving) that need direct
// access.
func (s *Swarm) Coordinator() *coordinator.Coordinator { return s.coord }
