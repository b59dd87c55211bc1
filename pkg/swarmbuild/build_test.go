package swarmbuild

import (
	"context"
	"io"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/config"
	"github.com/shawkym/agentpipe/pkg/coordinator"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	return agent.RunResult{Output: input}, nil
}

// stubAgent is the minimal agent.Agent a swarmbuild test registers; it
// never actually runs, since Build only wires the agent roster.
type stubAgent struct {
	id, name string
}

func (s *stubAgent) GetID() string   { return s.id }
func (s *stubAgent) GetName() string { return s.name }
func (s *stubAgent) GetType() string { return "stub" }
func (s *stubAgent) GetModel() string { return "stub-model" }
func (s *stubAgent) GetRateLimit() float64 { return 0 }
func (s *stubAgent) GetRateLimitBurst() int { return 0 }
func (s *stubAgent) Initialize(agent.AgentConfig) error { return nil }
func (s *stubAgent) SendMessage(context.Context, []agent.Message) (string, error) { return "", nil }
func (s *stubAgent) StreamMessage(context.Context, []agent.Message, io.Writer) error {
	return nil
}
func (s *stubAgent) Announce() string            { return "" }
func (s *stubAgent) IsAvailable() bool           { return true }
func (s *stubAgent) HealthCheck(context.Context) error { return nil }
func (s *stubAgent) GetCLIVersion() string       { return "stub" }
func (s *stubAgent) GetPrompt() string           { return "" }

func baseConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Agents = []agent.AgentConfig{
		{ID: "a1", Name: "alice", Type: "stub"},
		{ID: "a2", Name: "bob", Type: "stub"},
	}
	return cfg
}

func testAgents() []agent.Agent {
	return []agent.Agent{
		&stubAgent{id: "a1", name: "alice"},
		&stubAgent{id: "a2", name: "bob"},
	}
}

func TestBuildDefaultsToRoundRobin(t *testing.T) {
	cfg := baseConfig()
	sw, err := Build(cfg, testAgents(), noopRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sw.Coordinator().AgentNames()) != 2 {
		t.Fatalf("expected 2 registered agents, got %d", len(sw.Coordinator().AgentNames()))
	}
}

func TestBuildHonorsConfiguredStrategy(t *testing.T) {
	cfg := baseConfig()
	cfg.Swarm.Strategy = "debate"
	cfg.Agents[0].Role = agent.RoleAdvocate
	cfg.Agents[1].Role = agent.RoleCritic
	cfg.Swarm.Debate.Rounds = 2

	sw, err := Build(cfg, testAgents(), noopRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sw == nil {
		t.Fatal("expected a non-nil swarm")
	}
}

func TestBuildPropagatesStrategyConstructionError(t *testing.T) {
	cfg := baseConfig()
	cfg.Swarm.Strategy = "consensus" // requires 2+ non-supervisor agents; only 2 present, should succeed
	cfg.Agents = cfg.Agents[:1]      // trim to 1 agent: now consensus construction must fail

	if _, err := Build(cfg, testAgents()[:1], noopRunner{}); err == nil {
		t.Fatal("expected Build to propagate the strategy's construction error")
	}
}

func TestBuildRegistersAgentRoleWeightAndCapabilities(t *testing.T) {
	cfg := baseConfig()
	cfg.Agents[0].Role = agent.RoleWorker
	cfg.Agents[0].Weight = 2.5
	cfg.Agents[0].Capabilities = []string{"go", "testing"}

	sw, err := Build(cfg, testAgents(), noopRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sa, ok := sw.Coordinator().GetAgent("alice")
	if !ok {
		t.Fatal("expected alice registered")
	}
	if sa.Metadata.Role != agent.RoleWorker || sa.Metadata.Weight != 2.5 || len(sa.Metadata.Expertise) != 2 {
		t.Fatalf("expected metadata carried from config, got %+v", sa.Metadata)
	}
}

func TestStrategyNameFallsBackToOrchestratorMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Swarm.Strategy = ""
	cfg.Orchestrator.Mode = "reactive"
	if got := strategyName(cfg); got != "debate" {
		t.Errorf("expected reactive mode to map to debate, got %q", got)
	}

	cfg.Orchestrator.Mode = "round-robin"
	if got := strategyName(cfg); got != "round-robin" {
		t.Errorf("expected default round-robin, got %q", got)
	}
}
