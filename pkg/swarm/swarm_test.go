package swarm

import (
	"context"
	"errors"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/strategy"
)

type fakeStrategy struct {
	name   string
	result strategy.Result
	err    error
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) Execute(ctx context.Context, opts strategy.Options) (strategy.Result, error) {
	return f.result, f.err
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	return agent.RunResult{Output: input}, nil
}

func newTestSwarm(t *testing.T, strat strategy.Strategy, withAgent bool) *Swarm {
	t.Helper()
	c := coordinator.New(coordinator.Options{Runner: noopRunner{}})
	if withAgent {
		c.RegisterAgent("alice", agent.NewSwarmAgent(nil, agent.Metadata{}), nil, nil)
	}
	return New(c, strat)
}

func TestRunReturnsStrategyResultAndEmitsLifecycleEvents(t *testing.T) {
	strat := &fakeStrategy{name: "fake", result: strategy.Result{Output: "done"}}
	sw := newTestSwarm(t, strat, true)

	var seen []string
	sw.Events().On("swarm:start", func(events.Event) { seen = append(seen, "start") })
	sw.Events().On("swarm:complete", func(events.Event) { seen = append(seen, "complete") })

	res, err := sw.Run(context.Background(), "input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "done" {
		t.Fatalf("expected strategy result forwarded, got %q", res.Output)
	}
	if len(seen) != 2 || seen[0] != "start" || seen[1] != "complete" {
		t.Fatalf("expected start then complete events, got %v", seen)
	}
}

func TestRunWrapsStrategyErrorAndEmitsError(t *testing.T) {
	strat := &fakeStrategy{name: "fake", err: errors.New("boom")}
	sw := newTestSwarm(t, strat, true)

	var errored bool
	sw.Events().On("swarm:error", func(events.Event) { errored = true })

	if _, err := sw.Run(context.Background(), "input"); err == nil {
		t.Fatal("expected Run to return an error")
	}
	if !errored {
		t.Error("expected swarm:error event to fire on strategy failure")
	}
}

func TestDryRunFailsWithNoAgents(t *testing.T) {
	strat := &fakeStrategy{name: "fake"}
	sw := newTestSwarm(t, strat, false)

	if err := sw.DryRun(); err == nil {
		t.Fatal("expected DryRun to fail with no registered agents")
	}
}

func TestDryRunPassesWithAgents(t *testing.T) {
	strat := &fakeStrategy{name: "fake"}
	sw := newTestSwarm(t, strat, true)

	if err := sw.DryRun(); err != nil {
		t.Fatalf("expected DryRun to pass, got %v", err)
	}
}

func TestPauseResumeAbortResetEmitLifecycleEvents(t *testing.T) {
	strat := &fakeStrategy{name: "fake"}
	sw := newTestSwarm(t, strat, true)

	var events_ []string
	for _, evt := range []string{"swarm:paused", "swarm:resumed", "swarm:aborted", "swarm:reset"} {
		evt := evt
		sw.Events().On(evt, func(events.Event) { events_ = append(events_, evt) })
	}

	sw.Pause()
	sw.Resume()
	sw.Abort()
	sw.Reset()

	if len(events_) != 4 {
		t.Fatalf("expected 4 lifecycle events fired, got %v", events_)
	}
	if sw.Coordinator().IsAborted() {
		t.Error("expected Reset to clear the aborted flag")
	}
}

func TestAccessorsExposeUnderlyingPrimitives(t *testing.T) {
	strat := &fakeStrategy{name: "fake"}
	sw := newTestSwarm(t, strat, true)

	if sw.Events() == nil || sw.Messages() == nil || sw.Blackboard() == nil || sw.Coordinator() == nil {
		t.Fatal("expected all accessor methods to return non-nil primitives")
	}
}
