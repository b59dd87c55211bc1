// Package runner implements the coordinator.Runner contract on top of the
// opaque agent.Agent interface: the concrete, narrow collaborator the core
// consumes and never looks inside. It applies per-agent rate limiting and
// an optional middleware chain, then estimates usage the way the teacher's
// utils package already does.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/log"
	"github.com/shawkym/agentpipe/pkg/middleware"
	"github.com/shawkym/agentpipe/pkg/ratelimit"
	"github.com/shawkym/agentpipe/pkg/utils"
)

// AgentRunner adapts agent.Agent.SendMessage to coordinator.Runner,
// threading a per-agent rate limiter and a shared middleware chain.
type AgentRunner struct {
	mu       sync.Mutex
	limiters map[string]*ratelimit.Limiter
	chain    *middleware.Chain
	turns    map[string]int
}

// NewAgentRunner constructs an AgentRunner. chain may be nil to skip
// middleware processing entirely.
func NewAgentRunner(chain *middleware.Chain) *AgentRunner {
	return &AgentRunner{
		limiters: make(map[string]*ratelimit.Limiter),
		chain:    chain,
		turns:    make(map[string]int),
	}
}

func (r *AgentRunner) limiterFor(a agent.Agent) *ratelimit.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[a.GetID()]
	if !ok {
		l = ratelimit.NewLimiter(a.GetRateLimit(), a.GetRateLimitBurst())
		r.limiters[a.GetID()] = l
	}
	return l
}

func (r *AgentRunner) nextTurn(agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[agentID]++
	return r.turns[agentID]
}

// Run implements coordinator.Runner: wait on the rate limiter, invoke the
// agent, run the response through the middleware chain, and estimate
// usage from the (possibly absent) response metrics.
func (r *AgentRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	if err := r.limiterFor(a).Wait(ctx); err != nil {
		return agent.RunResult{}, fmt.Errorf("runner: rate limit wait: %w", err)
	}

	start := time.Now()
	output, err := a.SendMessage(ctx, []agent.Message{{
		AgentID:   a.GetID(),
		AgentName: a.GetName(),
		AgentType: a.GetType(),
		Content:   input,
		Timestamp: start.Unix(),
		Role:      "user",
	}})
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("runner: agent %s: %w", a.GetName(), err)
	}
	duration := time.Since(start)

	msg := &agent.Message{
		AgentID:   a.GetID(),
		AgentName: a.GetName(),
		AgentType: a.GetType(),
		Content:   output,
		Timestamp: time.Now().Unix(),
		Role:      "agent",
	}

	if r.chain != nil {
		mctx := &middleware.MessageContext{
			Ctx:        ctx,
			AgentID:    a.GetID(),
			AgentName:  a.GetName(),
			TurnNumber: r.nextTurn(a.GetID()),
			Metadata:   map[string]interface{}{"swarmId": swarmCtx.SwarmID},
		}
		processed, err := r.chain.Process(mctx, msg)
		if err != nil {
			return agent.RunResult{}, fmt.Errorf("runner: middleware rejected response: %w", err)
		}
		msg = processed
	}

	inputTokens := utils.EstimateTokens(input)
	outputTokens := utils.EstimateTokens(msg.Content)
	cost := utils.EstimateCost(a.GetModel(), inputTokens, outputTokens)

	log.WithFields(map[string]interface{}{
		"agent":    a.GetName(),
		"duration": duration.String(),
		"tokens":   inputTokens + outputTokens,
	}).Debug("agent run completed")

	return agent.RunResult{
		Output: msg.Content,
		Usage: agent.Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
			Cost:         cost,
			Duration:     duration,
		},
	}, nil
}
