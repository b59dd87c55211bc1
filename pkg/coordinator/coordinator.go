// Package coordinator mediates every agent invocation on behalf of a
// swarm run: it owns the agent registry, the communication primitives
// (events, message bus, blackboard, resource tracker), an optional circuit
// breaker per agent, and retry/failover policy, grounded on the teacher's
// orchestrator retry-and-backoff loop and the wave-based bounded-
// concurrency pattern used elsewhere in the pack.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/blackboard"
	"github.com/shawkym/agentpipe/pkg/circuitbreaker"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/log"
	"github.com/shawkym/agentpipe/pkg/messagebus"
	"github.com/shawkym/agentpipe/pkg/resource"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// Backoff selects how retry delay grows between attempts.
type Backoff string

const (
	BackoffConstant    Backoff = "constant"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// FailureAction selects how the coordinator reacts to an agent-runner
// failure on runAgent.
type FailureAction string

const (
	FailureRetry    FailureAction = "retry"
	FailureFailover FailureAction = "failover"
	FailureSkip     FailureAction = "skip"
	FailureAbort    FailureAction = "abort"
)

// RetryConfig configures the "retry" failure action.
type RetryConfig struct {
	MaxRetries   int
	Backoff      Backoff
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// FailurePolicy is the per-agent (or coordinator-default) reaction to an
// agent-runner error.
type FailurePolicy struct {
	Action       FailureAction
	Retry        RetryConfig
	FailoverName string

	// PerCallTimeout bounds a single runner.Run invocation (original
	// attempt and every retry). Zero means no deadline beyond ctx's own.
	PerCallTimeout time.Duration
}

// calculateBackoffDelay mirrors the teacher's orchestrator backoff math,
// generalized across the three supported curves, capped at MaxDelay.
func calculateBackoffDelay(cfg RetryConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	var delay time.Duration
	switch cfg.Backoff {
	case BackoffLinear:
		delay = cfg.InitialDelay * time.Duration(attempt+1)
	case BackoffExponential:
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(2, float64(attempt)))
	default:
		delay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// Runner is the external, opaque agent-runner capability the coordinator
// consumes: given an agent and an input plus context, it must produce a
// RunResult or an error. The underlying language-model client, guardrails,
// and tool execution all live behind this one narrow interface.
type Runner interface {
	Run(ctx context.Context, a agent.Agent, input string, swarmCtx Context) (agent.RunResult, error)
}

// Context is threaded onto every agent invocation in addition to the
// caller-supplied context.Context.
type Context struct {
	SwarmID       string
	SwarmName     string
	AgentRole     agent.Role
	OtherAgents   []string
}

// ctxKey is the context.Context key used to carry Context through Runner.Run.
type ctxKey struct{}

// WithSwarmContext attaches sc to ctx for a Runner implementation to read
// back out via FromContext.
func WithSwarmContext(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext retrieves the Context attached by WithSwarmContext.
func FromContext(ctx context.Context) (Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(Context)
	return sc, ok
}

// Coordinator owns the agent registry and every communication primitive
// for one swarm run.
type Coordinator struct {
	SwarmID   string
	SwarmName string

	runner Runner

	mu        sync.RWMutex
	agents    map[string]*agent.SwarmAgent
	order     []string
	breakers  map[string]*circuitbreaker.Breaker
	policies  map[string]FailurePolicy
	defaultPolicy FailurePolicy

	Events     *events.Emitter
	Messages   *messagebus.Bus
	Blackboard *blackboard.Blackboard
	Resources  *resource.Tracker

	paused  atomicBool
	aborted atomicBool
}

// Options configures a new Coordinator.
type Options struct {
	SwarmID       string
	SwarmName     string
	Runner        Runner
	Limits        resource.Limits
	History       bool
	DefaultPolicy FailurePolicy
	Breaker       *circuitbreaker.Config
}

// New constructs a Coordinator with empty communication primitives.
func New(opts Options) *Coordinator {
	return &Coordinator{
		SwarmID:       opts.SwarmID,
		SwarmName:     opts.SwarmName,
		runner:        opts.Runner,
		agents:        make(map[string]*agent.SwarmAgent),
		breakers:      make(map[string]*circuitbreaker.Breaker),
		policies:      make(map[string]FailurePolicy),
		defaultPolicy: opts.DefaultPolicy,
		Events:        events.New(),
		Messages:      messagebus.New(),
		Blackboard:    blackboard.New(opts.History),
		Resources:     resource.New(opts.Limits),
	}
}

// RegisterAgent adds a SwarmAgent under name, wiring it into the message
// bus and an optional per-agent circuit breaker. Agent names are unique
// within one coordinator.
func (c *Coordinator) RegisterAgent(name string, sa *agent.SwarmAgent, breakerCfg *circuitbreaker.Config, policy *FailurePolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.agents[name]; !exists {
		c.order = append(c.order, name)
	}
	c.agents[name] = sa
	c.Messages.RegisterAgent(name)

	if breakerCfg != nil {
		c.breakers[name] = circuitbreaker.New(*breakerCfg)
	}
	if policy != nil {
		c.policies[name] = *policy
	}
}

// GetAgent looks up a registered SwarmAgent by name.
func (c *Coordinator) GetAgent(name string) (*agent.SwarmAgent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sa, ok := c.agents[name]
	return sa, ok
}

// AgentNames returns every registered agent name in registration order.
func (c *Coordinator) AgentNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *Coordinator) otherAgentNames(exclude string) []string {
	names := c.AgentNames()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) policyFor(name string) FailurePolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.policies[name]; ok {
		return p
	}
	return c.defaultPolicy
}

func (c *Coordinator) breakerFor(name string) *circuitbreaker.Breaker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breakers[name]
}

// Pause suspends future runAgent calls until Resume is called.
func (c *Coordinator) Pause() { c.paused.set(true) }

// Resume releases any runAgent calls suspended by Pause.
func (c *Coordinator) Resume() { c.paused.set(false) }

// Abort sticks the coordinator into a failing state: every subsequent
// runAgent fails immediately with ErrAborted.
func (c *Coordinator) Abort() { c.aborted.set(true) }

// IsAborted reports whether Abort has been called.
func (c *Coordinator) IsAborted() bool { return c.aborted.get() }

// Reset clears agent state, the resource tracker, every circuit breaker,
// and all communication primitives, and un-sets paused/aborted.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	for _, sa := range c.agents {
		sa.State = agent.StateIdle
		sa.LastResult = nil
		sa.TokenCount = 0
	}
	for _, b := range c.breakers {
		b.Reset()
	}
	c.mu.Unlock()

	c.Resources.Reset()
	c.Events.RemoveAllListeners()
	c.Events.ClearEvents()
	c.Messages.Clear()
	c.Blackboard.Clear()
	c.paused.set(false)
	c.aborted.set(false)
}

// waitWhilePaused polls at 50ms granularity, returning early (with true)
// if ctx is cancelled or the coordinator is aborted while waiting.
func (c *Coordinator) waitWhilePaused(ctx context.Context) bool {
	for c.paused.get() {
		if c.aborted.get() {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false
}

// RunAgent invokes the named agent, applying retry/failover policy around
// a failure. It returns the RunResult from whichever
// attempt (original, retried, or failed-over) ultimately succeeded.
func (c *Coordinator) RunAgent(ctx context.Context, name string, input string) (agent.RunResult, error) {
	sa, ok := c.GetAgent(name)
	if !ok {
		return agent.RunResult{}, fmt.Errorf("%w: %s", swarmerr.ErrUnknownAgent, name)
	}

	if c.aborted.get() {
		return agent.RunResult{}, swarmerr.ErrAborted
	}
	if breaker := c.breakerFor(name); breaker != nil && !breaker.CanExecute() {
		return agent.RunResult{}, fmt.Errorf("%w: %s", swarmerr.ErrCircuitOpen, name)
	}
	if !c.Resources.IsWithinBudget() {
		return agent.RunResult{}, swarmerr.ErrBudgetExceeded
	}

	if aborted := c.waitWhilePaused(ctx); aborted {
		return agent.RunResult{}, swarmerr.ErrAborted
	}
	if c.aborted.get() {
		return agent.RunResult{}, swarmerr.ErrAborted
	}

	return c.attempt(ctx, name, sa, input)
}

func (c *Coordinator) attempt(ctx context.Context, name string, sa *agent.SwarmAgent, input string) (agent.RunResult, error) {
	c.mu.Lock()
	sa.State = agent.StateRunning
	c.mu.Unlock()

	c.Events.Emit("agent:start", map[string]interface{}{"agent": name, "input": input}, name)

	swarmCtx := Context{
		SwarmID:     c.SwarmID,
		SwarmName:   c.SwarmName,
		AgentRole:   sa.Metadata.Role,
		OtherAgents: c.otherAgentNames(name),
	}
	policy := c.policyFor(name)

	result, err := c.runOnce(ctx, sa, input, swarmCtx, policy.PerCallTimeout)
	if err == nil {
		c.commitSuccess(name, sa, result)
		return result, nil
	}

	return c.handleFailure(ctx, name, sa, input, swarmCtx, policy, err)
}

// runOnce invokes the runner once, bounding it by timeout when set and
// translating a deadline overrun into swarmerr.ErrTimeout.
func (c *Coordinator) runOnce(ctx context.Context, sa *agent.SwarmAgent, input string, swarmCtx Context, timeout time.Duration) (agent.RunResult, error) {
	runCtx := WithSwarmContext(ctx, swarmCtx)
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	result, err := c.runner.Run(runCtx, sa.Agent, input, swarmCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return agent.RunResult{}, fmt.Errorf("%w: %v", swarmerr.ErrTimeout, err)
	}
	return result, err
}

func (c *Coordinator) commitSuccess(name string, sa *agent.SwarmAgent, result agent.RunResult) {
	c.mu.Lock()
	sa.State = agent.StateCompleted
	sa.LastResult = &result
	sa.TokenCount += result.Usage.TotalTokens
	c.mu.Unlock()

	c.Resources.TrackAgentRun(name, result.Usage)
	if breaker := c.breakerFor(name); breaker != nil {
		breaker.RecordSuccess()
	}
	c.Events.Emit("agent:complete", map[string]interface{}{"agent": name, "result": result}, name)
}

func (c *Coordinator) commitFailure(name string, sa *agent.SwarmAgent, err error) {
	c.mu.Lock()
	sa.State = agent.StateFailed
	c.mu.Unlock()

	if breaker := c.breakerFor(name); breaker != nil {
		breaker.RecordFailure()
	}
	c.Events.Emit("agent:error", map[string]interface{}{"agent": name, "error": err.Error()}, name)
}

func (c *Coordinator) handleFailure(ctx context.Context, name string, sa *agent.SwarmAgent, input string, swarmCtx Context, policy FailurePolicy, err error) (agent.RunResult, error) {
	switch policy.Action {
	case FailureRetry:
		return c.retryLoop(ctx, name, sa, input, swarmCtx, policy, err)
	case FailureFailover:
		log.WithField("agent", name).WithField("failover", policy.FailoverName).Warn("agent failed, failing over")
		c.commitFailure(name, sa, err)
		if backup, ok := c.GetAgent(policy.FailoverName); ok {
			return c.attempt(ctx, policy.FailoverName, backup, input)
		}
		return agent.RunResult{}, fmt.Errorf("%w: failover target %s", swarmerr.ErrUnknownAgent, policy.FailoverName)
	case FailureSkip:
		c.commitFailure(name, sa, err)
		return agent.RunResult{}, nil
	default: // FailureAbort or unset
		c.commitFailure(name, sa, err)
		return agent.RunResult{}, err
	}
}

func (c *Coordinator) retryLoop(ctx context.Context, name string, sa *agent.SwarmAgent, input string, swarmCtx Context, policy FailurePolicy, lastErr error) (agent.RunResult, error) {
	retryCfg := policy.Retry
	for attempt := 0; attempt < retryCfg.MaxRetries; attempt++ {
		delay := calculateBackoffDelay(retryCfg, attempt)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return agent.RunResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		log.WithField("agent", name).WithField("attempt", attempt+1).WithError(lastErr).Warn("retrying agent invocation")
		c.Events.Emit("agent:retry", map[string]interface{}{"agent": name, "attempt": attempt + 1, "error": lastErr.Error()}, name)

		result, err := c.runOnce(ctx, sa, input, swarmCtx, policy.PerCallTimeout)
		if err == nil {
			c.commitSuccess(name, sa, result)
			return result, nil
		}
		lastErr = err
	}

	c.commitFailure(name, sa, lastErr)
	return agent.RunResult{}, fmt.Errorf("%w: %s: %v", swarmerr.ErrRetriesExhausted, name, lastErr)
}

// RunAgentsParallel processes items in consecutive windows of size
// maxConcurrency (default 4 when <=0). Within a window all invocations run
// concurrently. A failure produces no map entry unless the effective
// policy is FailureAbort, in which case the first failure is returned.
func (c *Coordinator) RunAgentsParallel(ctx context.Context, items map[string]string, maxConcurrency int) (map[string]agent.RunResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]agent.RunResult, len(names))
	var resultsMu sync.Mutex

	for start := 0; start < len(names); start += maxConcurrency {
		end := start + maxConcurrency
		if end > len(names) {
			end = len(names)
		}
		window := names[start:end]

		var wg sync.WaitGroup
		errCh := make(chan error, len(window))

		for _, name := range window {
			name := name
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := c.RunAgent(ctx, name, items[name])
				if err != nil {
					if c.policyFor(name).Action == FailureAbort {
						errCh <- err
					}
					return
				}
				if c.policyFor(name).Action == FailureSkip {
					c.mu.RLock()
					sa, ok := c.agents[name]
					failed := ok && sa.State == agent.StateFailed
					c.mu.RUnlock()
					if failed {
						return
					}
				}
				resultsMu.Lock()
				results[name] = result
				resultsMu.Unlock()
				c.recordParallelResult(name, result.Output)
			}()
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			return results, err
		}
	}

	return results, nil
}

// recordParallelResult merges name's output into the "workerResults"
// blackboard section, retrying the compare-and-swap write whenever a
// concurrent sibling in the same window commits first.
func (c *Coordinator) recordParallelResult(name, output string) {
	const section = "workerResults"
	for {
		version := 0
		merged := make(map[string]interface{})
		if s, err := c.Blackboard.GetSection(section); err == nil {
			version = s.Version
			if existing, ok := s.Data.(map[string]interface{}); ok {
				for k, v := range existing {
					merged[k] = v
				}
			}
		}
		merged[name] = output

		if _, err := c.Blackboard.WriteIfVersion(section, version, merged, name); err != nil {
			if errors.Is(err, swarmerr.ErrStaleWrite) {
				continue
			}
			return
		}
		return
	}
}

// atomicBool is a tiny mutex-guarded bool, used instead of sync/atomic.Bool
// to keep this file's lowest supported Go version wide.
type atomicBool struct {
	mu sync.RWMutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

func (a *atomicBool) get() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}
