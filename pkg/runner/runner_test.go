package runner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/middleware"
)

type scriptedAgent struct {
	id, name, typ string
	rateLimit     float64
	burst         int
	output        string
	err           error
}

func (s *scriptedAgent) GetID() string              { return s.id }
func (s *scriptedAgent) GetName() string            { return s.name }
func (s *scriptedAgent) GetType() string            { return s.typ }
func (s *scriptedAgent) GetModel() string            { return "stub-model" }
func (s *scriptedAgent) GetRateLimit() float64       { return s.rateLimit }
func (s *scriptedAgent) GetRateLimitBurst() int      { return s.burst }
func (s *scriptedAgent) Initialize(agent.AgentConfig) error { return nil }
func (s *scriptedAgent) SendMessage(context.Context, []agent.Message) (string, error) {
	return s.output, s.err
}
func (s *scriptedAgent) StreamMessage(context.Context, []agent.Message, io.Writer) error { return nil }
func (s *scriptedAgent) Announce() string                  { return "" }
func (s *scriptedAgent) IsAvailable() bool                 { return true }
func (s *scriptedAgent) HealthCheck(context.Context) error { return nil }
func (s *scriptedAgent) GetCLIVersion() string              { return "stub" }
func (s *scriptedAgent) GetPrompt() string                  { return "" }

func TestRunReturnsOutputAndUsage(t *testing.T) {
	r := NewAgentRunner(nil)
	a := &scriptedAgent{id: "a1", name: "alice", typ: "claude", output: "here is my answer"}

	res, err := r.Run(context.Background(), a, "what do you think", coordinator.Context{SwarmID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "here is my answer" {
		t.Errorf("expected output forwarded, got %q", res.Output)
	}
	if res.Usage.TotalTokens == 0 {
		t.Error("expected non-zero estimated token usage")
	}
}

func TestRunPropagatesAgentError(t *testing.T) {
	r := NewAgentRunner(nil)
	a := &scriptedAgent{id: "a1", name: "alice", err: errors.New("boom")}

	if _, err := r.Run(context.Background(), a, "hi", coordinator.Context{}); err == nil {
		t.Fatal("expected Run to propagate the agent's SendMessage error")
	}
}

func TestRunAppliesMiddlewareChain(t *testing.T) {
	var seenTurn int
	upper := middleware.NewMiddlewareFunc("upper", func(ctx *middleware.MessageContext, msg *agent.Message, next middleware.ProcessFunc) (*agent.Message, error) {
		seenTurn = ctx.TurnNumber
		msg.Content = msg.Content + "!"
		return next(ctx, msg)
	})
	r := NewAgentRunner(middleware.NewChain(upper))
	a := &scriptedAgent{id: "a1", name: "alice", output: "done"}

	res, err := r.Run(context.Background(), a, "task", coordinator.Context{SwarmID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "done!" {
		t.Errorf("expected middleware to transform output, got %q", res.Output)
	}
	if seenTurn != 1 {
		t.Errorf("expected first turn to be numbered 1, got %d", seenTurn)
	}
}

func TestRunMiddlewareRejectionSurfacesAsError(t *testing.T) {
	reject := middleware.NewMiddlewareFunc("reject", func(ctx *middleware.MessageContext, msg *agent.Message, next middleware.ProcessFunc) (*agent.Message, error) {
		return nil, errors.New("blocked by policy")
	})
	r := NewAgentRunner(middleware.NewChain(reject))
	a := &scriptedAgent{id: "a1", name: "alice", output: "done"}

	if _, err := r.Run(context.Background(), a, "task", coordinator.Context{}); err == nil {
		t.Fatal("expected middleware rejection to surface as an error")
	}
}

func TestRunIncrementsTurnNumberPerAgent(t *testing.T) {
	var turns []int
	counter := middleware.NewMiddlewareFunc("counter", func(ctx *middleware.MessageContext, msg *agent.Message, next middleware.ProcessFunc) (*agent.Message, error) {
		turns = append(turns, ctx.TurnNumber)
		return next(ctx, msg)
	})
	r := NewAgentRunner(middleware.NewChain(counter))
	a := &scriptedAgent{id: "a1", name: "alice", output: "ok"}

	for i := 0; i < 3; i++ {
		if _, err := r.Run(context.Background(), a, "go", coordinator.Context{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(turns) != 3 || turns[0] != 1 || turns[1] != 2 || turns[2] != 3 {
		t.Fatalf("expected turns [1 2 3], got %v", turns)
	}
}

func TestRunReusesRateLimiterAcrossCalls(t *testing.T) {
	r := NewAgentRunner(nil)
	a := &scriptedAgent{id: "a1", name: "alice", output: "ok", rateLimit: 5, burst: 2}

	first := r.limiterFor(a)
	second := r.limiterFor(a)
	if first != second {
		t.Error("expected the same limiter instance reused for the same agent ID")
	}
}
