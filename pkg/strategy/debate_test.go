package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/messagebus"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// turnCountingRunner returns a distinct output per call so tests can
// verify how many times each debater/moderator actually ran.
type turnCountingRunner struct {
	calls map[string]int
}

func (r *turnCountingRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	name := a.GetName()
	r.calls[name]++
	return agent.RunResult{Output: fmt.Sprintf("%s says %d", name, r.calls[name])}, nil
}

func newDebateCoordinator(roles map[string]agent.Role) (*coordinator.Coordinator, *turnCountingRunner) {
	runner := &turnCountingRunner{calls: map[string]int{}}
	c := coordinator.New(coordinator.Options{Runner: runner})
	for name, role := range roles {
		c.RegisterAgent(name, agent.NewSwarmAgent(&stubAgent{name: name}, agent.Metadata{Role: role}), nil, nil)
	}
	return c, runner
}

func TestNewDebateRequiresPositiveRounds(t *testing.T) {
	c, _ := newDebateCoordinator(map[string]agent.Role{"alice": agent.RoleAdvocate, "bob": agent.RoleCritic})
	if _, err := NewDebate(c, DebateConfig{Rounds: 0}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for rounds<=0, got %v", err)
	}
}

func TestNewDebateRequiresTwoDebaters(t *testing.T) {
	c, _ := newDebateCoordinator(map[string]agent.Role{"alice": agent.RoleAdvocate})
	if _, err := NewDebate(c, DebateConfig{Rounds: 1}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with only one debater, got %v", err)
	}
}

func TestDebateRunsEachDebaterPerRound(t *testing.T) {
	c, runner := newDebateCoordinator(map[string]agent.Role{
		"alice": agent.RoleAdvocate,
		"bob":   agent.RoleCritic,
	})
	d, err := NewDebate(c, DebateConfig{Rounds: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := d.Execute(context.Background(), Options{Input: "is x better than y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls["alice"] != 2 || runner.calls["bob"] != 2 {
		t.Fatalf("expected each debater invoked once per round, got %+v", runner.calls)
	}
	transcript, ok := res.Byproducts["transcript"].([]messagebus.Message)
	if !ok || len(transcript) != 4 {
		t.Fatalf("expected a 4-entry transcript (2 rounds x 2 debaters), got %v", res.Byproducts["transcript"])
	}
}

func TestDebateWithoutModeratorSummarizesTranscript(t *testing.T) {
	c, _ := newDebateCoordinator(map[string]agent.Role{
		"alice": agent.RoleAdvocate,
		"bob":   agent.RoleCritic,
	})
	d, err := NewDebate(c, DebateConfig{Rounds: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := d.Execute(context.Background(), Options{Input: "topic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output == "" {
		t.Fatal("expected a non-empty debate summary output without a moderator")
	}
}

func TestDebateWithModeratorSynthesizesFinalAnswer(t *testing.T) {
	c, runner := newDebateCoordinator(map[string]agent.Role{
		"alice": agent.RoleAdvocate,
		"bob":   agent.RoleCritic,
		"judge": agent.RoleModerator,
	})
	d, err := NewDebate(c, DebateConfig{Rounds: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := d.Execute(context.Background(), Options{Input: "topic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls["judge"] != 1 {
		t.Fatalf("expected moderator invoked exactly once for synthesis, got %d", runner.calls["judge"])
	}
	if _, ok := res.AgentResults["judge"]; !ok {
		t.Error("expected moderator result present in AgentResults")
	}
}
