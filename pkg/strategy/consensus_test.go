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

// votingRunner returns a scripted "VOTE: x" response per agent name,
// looping back to the last scripted vote once a round runs out of values.
type votingRunner struct {
	votes map[string][]string
	index map[string]int
}

func (r *votingRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	name := a.GetName()
	opts := r.votes[name]
	i := r.index[name]
	if i >= len(opts) {
		i = len(opts) - 1
	}
	r.index[name] = i + 1
	return agent.RunResult{Output: "VOTE: " + opts[i]}, nil
}

func newConsensusCoordinator(votes map[string][]string) *coordinator.Coordinator {
	c := coordinator.New(coordinator.Options{Runner: &votingRunner{votes: votes, index: map[string]int{}}})
	for name := range votes {
		c.RegisterAgent(name, agent.NewSwarmAgent(&stubAgent{name: name}, agent.Metadata{Role: agent.RoleWorker}), nil, nil)
	}
	return c
}

func TestNewConsensusRequiresTwoVoters(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{"alice": {"a"}})
	if _, err := NewConsensus(c, ConsensusConfig{}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with one voter, got %v", err)
	}
}

func TestConsensusMajorityReachedFirstRound(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{
		"alice": {"yes"},
		"bob":   {"yes"},
		"carol": {"no"},
	})
	cs, err := NewConsensus(c, ConsensusConfig{MaxRounds: 3, Resolution: ResolutionMajority, Threshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := cs.Execute(context.Background(), Options{Input: "pick one"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Byproducts["decision"] != "yes" {
		t.Fatalf("expected decision 'yes', got %v", res.Byproducts["decision"])
	}
	if res.Byproducts["rounds"] != 1 {
		t.Errorf("expected consensus reached in round 1, got %v", res.Byproducts["rounds"])
	}
}

func TestConsensusUnanimousRequiresAllAgree(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{
		"alice": {"yes", "yes"},
		"bob":   {"no", "yes"},
	})
	cs, err := NewConsensus(c, ConsensusConfig{MaxRounds: 2, Resolution: ResolutionUnanimous})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := cs.Execute(context.Background(), Options{Input: "pick one"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Byproducts["decision"] != "yes" || res.Byproducts["rounds"] != 2 {
		t.Fatalf("expected unanimous 'yes' reached in round 2, got %+v", res.Byproducts)
	}
}

func TestConsensusNoConsensusFailsByDefault(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{
		"alice": {"yes"},
		"bob":   {"no"},
	})
	cs, err := NewConsensus(c, ConsensusConfig{MaxRounds: 1, Resolution: ResolutionUnanimous})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cs.Execute(context.Background(), Options{Input: "pick one"}); !errors.Is(err, swarmerr.ErrNoConsensus) {
		t.Fatalf("expected ErrNoConsensus, got %v", err)
	}
}

func TestConsensusNoConsensusMajorityRulesFallback(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{
		"alice": {"yes"},
		"bob":   {"yes"},
		"carol": {"no"},
	})
	cs, err := NewConsensus(c, ConsensusConfig{
		MaxRounds:     1,
		Resolution:    ResolutionUnanimous,
		OnNoConsensus: NoConsensusMajorityRules,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := cs.Execute(context.Background(), Options{Input: "pick one"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Byproducts["decision"] != "yes" {
		t.Fatalf("expected majority-rules fallback decision 'yes', got %v", res.Byproducts["decision"])
	}
}

func TestConsensusEmitsRoundAndVoteEvents(t *testing.T) {
	c := newConsensusCoordinator(map[string][]string{
		"alice": {"yes"},
		"bob":   {"yes"},
	})
	cs, err := NewConsensus(c, ConsensusConfig{MaxRounds: 1, Threshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rounds, votes, reached int
	c.Events.On("consensus:round", func(events.Event) { rounds++ })
	c.Events.On("consensus:vote", func(events.Event) { votes++ })
	c.Events.On("consensus:reached", func(events.Event) { reached++ })

	if _, err := cs.Execute(context.Background(), Options{Input: "pick one"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rounds != 1 {
		t.Errorf("expected 1 consensus:round event, got %d", rounds)
	}
	if votes != 2 {
		t.Errorf("expected 2 consensus:vote events, got %d", votes)
	}
	if reached != 1 {
		t.Errorf("expected 1 consensus:reached event, got %d", reached)
	}
}
