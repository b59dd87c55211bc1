package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// echoRunner returns the input as output, tagging which call it was.
type echoRunner struct{ calls int }

func (r *echoRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	r.calls++
	return agent.RunResult{Output: input}, nil
}

func newTestCoordinator(names ...string) *coordinator.Coordinator {
	c := coordinator.New(coordinator.Options{Runner: &echoRunner{}})
	for _, n := range names {
		c.RegisterAgent(n, agent.NewSwarmAgent(nil, agent.Metadata{}), nil, nil)
	}
	return c
}

func TestNewRoundRobinRequiresAgents(t *testing.T) {
	c := newTestCoordinator()
	if _, err := NewRoundRobin(c, RoundRobinConfig{}); !errors.Is(err, swarmerr.ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestRoundRobinSequentialCyclesThroughAgents(t *testing.T) {
	c := newTestCoordinator("alice", "bob", "carol")
	rr, err := NewRoundRobin(c, RoundRobinConfig{Rotation: RotationSequential})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var seen []string
	for i := 0; i < 6; i++ {
		res, err := rr.Execute(context.Background(), Options{Input: "hi"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for name := range res.AgentResults {
			seen = append(seen, name)
		}
	}

	want := []string{"alice", "bob", "carol", "alice", "bob", "carol"}
	for i, w := range want {
		if seen[i] != w {
			t.Fatalf("expected rotation order %v, got %v", want, seen)
		}
	}
}

func TestRoundRobinStickyPinsInputKey(t *testing.T) {
	c := newTestCoordinator("alice", "bob")
	rr, err := NewRoundRobin(c, RoundRobinConfig{
		Sticky:    true,
		StickyKey: func(input string) string { return input },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firstRes, _ := rr.Execute(context.Background(), Options{Input: "task-a"})
	var firstAgent string
	for name := range firstRes.AgentResults {
		firstAgent = name
	}

	for i := 0; i < 3; i++ {
		res, err := rr.Execute(context.Background(), Options{Input: "task-a"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := res.AgentResults[firstAgent]; !ok {
			t.Fatalf("expected sticky key to keep routing to %s", firstAgent)
		}
	}
}

func TestRoundRobinStickyAssignmentDoesNotAdvanceIndex(t *testing.T) {
	c := newTestCoordinator("alice", "bob", "carol")
	rr, err := NewRoundRobin(c, RoundRobinConfig{
		Sticky:    true,
		StickyKey: func(input string) string { return input },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := rr.Execute(context.Background(), Options{Input: "task-a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.current != 0 {
		t.Fatalf("expected a fresh sticky assignment to leave the rotation index untouched, got %d", rr.current)
	}
}

func TestRoundRobinResetClearsStickyAndRotation(t *testing.T) {
	c := newTestCoordinator("alice", "bob")
	rr, _ := NewRoundRobin(c, RoundRobinConfig{
		Sticky:    true,
		StickyKey: func(input string) string { return input },
	})
	rr.Execute(context.Background(), Options{Input: "task-a"})

	rr.Reset()

	if len(rr.sticky) != 0 {
		t.Error("expected sticky map cleared after Reset")
	}
	if rr.current != 0 {
		t.Error("expected rotation index cleared after Reset")
	}
}

func TestRoundRobinEmitsAssignedEvent(t *testing.T) {
	c := newTestCoordinator("alice")
	rr, _ := NewRoundRobin(c, RoundRobinConfig{})

	var gotAgent string
	c.Events.On("round-robin:assigned", func(ev events.Event) { gotAgent = ev.AgentName })

	if _, err := rr.Execute(context.Background(), Options{Input: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAgent != "alice" {
		t.Errorf("expected round-robin:assigned event for alice, got %q", gotAgent)
	}
}
