// Package resource implements cumulative token/cost/time accounting for a
// swarm run, with a per-agent breakdown and budget checks.
package resource

import (
	"sync"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
)

// Limits configures the optional budget ceilings; a zero value means the
// corresponding dimension is unlimited.
type Limits struct {
	MaxTokens int
	MaxCost   float64
	MaxTime   time.Duration
}

// AgentTotals is the cumulative accounting for a single agent.
type AgentTotals struct {
	Tokens   int
	Cost     float64
	Runs     int
	Duration time.Duration
}

// Budget reports remaining headroom per dimension. Unlimited is true when
// the corresponding Limits field was unset, in which case Remaining is
// meaningless.
type Budget struct {
	TokensRemaining   int
	TokensUnlimited   bool
	CostRemaining     float64
	CostUnlimited     bool
	TimeRemaining     time.Duration
	TimeUnlimited     bool
}

// Tracker accumulates resource usage across a swarm run and enforces the
// optional Limits.
type Tracker struct {
	mu     sync.Mutex
	limits Limits
	start  time.Time

	totalTokens int
	totalCost   float64
	totalRuns   int
	totalDur    time.Duration

	perAgent map[string]*AgentTotals
}

// New creates a Tracker with the given limits, started now.
func New(limits Limits) *Tracker {
	return &Tracker{
		limits:   limits,
		start:    time.Now(),
		perAgent: make(map[string]*AgentTotals),
	}
}

// TrackAgentRun adds usage to the cumulative and per-agent totals.
func (t *Tracker) TrackAgentRun(name string, usage agent.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalTokens += usage.TotalTokens
	t.totalCost += usage.Cost
	t.totalRuns++
	t.totalDur += usage.Duration

	at, ok := t.perAgent[name]
	if !ok {
		at = &AgentTotals{}
		t.perAgent[name] = at
	}
	at.Tokens += usage.TotalTokens
	at.Cost += usage.Cost
	at.Runs++
	at.Duration += usage.Duration
}

// IsWithinBudget reports whether every configured limit is still
// satisfied: each check is vacuously true if its limit is unset, else a
// strict current < limit comparison.
func (t *Tracker) IsWithinBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkTokens() && t.checkCost() && t.checkTime()
}

func (t *Tracker) checkTokens() bool {
	return t.limits.MaxTokens == 0 || t.totalTokens < t.limits.MaxTokens
}

func (t *Tracker) checkCost() bool {
	return t.limits.MaxCost == 0 || t.totalCost < t.limits.MaxCost
}

func (t *Tracker) checkTime() bool {
	return t.limits.MaxTime == 0 || time.Since(t.start) < t.limits.MaxTime
}

// GetRemainingBudget returns max(0, limit-used) per dimension, with the
// Unlimited flags set for any dimension that has no configured limit.
func (t *Tracker) GetRemainingBudget() Budget {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := Budget{}

	if t.limits.MaxTokens == 0 {
		b.TokensUnlimited = true
	} else {
		b.TokensRemaining = max(0, t.limits.MaxTokens-t.totalTokens)
	}

	if t.limits.MaxCost == 0 {
		b.CostUnlimited = true
	} else {
		b.CostRemaining = maxFloat(0, t.limits.MaxCost-t.totalCost)
	}

	if t.limits.MaxTime == 0 {
		b.TimeUnlimited = true
	} else {
		remaining := t.limits.MaxTime - time.Since(t.start)
		if remaining < 0 {
			remaining = 0
		}
		b.TimeRemaining = remaining
	}

	return b
}

// GetUsage returns the cumulative totals accumulated so far.
func (t *Tracker) GetUsage() AgentTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return AgentTotals{
		Tokens:   t.totalTokens,
		Cost:     t.totalCost,
		Runs:     t.totalRuns,
		Duration: t.totalDur,
	}
}

// GetAgentUsage returns the per-agent totals for name, zero-value if the
// agent has never run.
func (t *Tracker) GetAgentUsage(name string) AgentTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.perAgent[name]; ok {
		return *at
	}
	return AgentTotals{}
}

// UsedRatio returns the fraction of each configured limit consumed so far,
// keyed by "tokens", "cost", and "time". A dimension with no configured
// limit is omitted.
func (t *Tracker) UsedRatio() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ratios := make(map[string]float64, 3)
	if t.limits.MaxTokens > 0 {
		ratios["tokens"] = float64(t.totalTokens) / float64(t.limits.MaxTokens)
	}
	if t.limits.MaxCost > 0 {
		ratios["cost"] = t.totalCost / t.limits.MaxCost
	}
	if t.limits.MaxTime > 0 {
		ratios["time"] = float64(time.Since(t.start)) / float64(t.limits.MaxTime)
	}
	return ratios
}

// Reset restarts the clock and zeros every counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
	t.totalTokens = 0
	t.totalCost = 0
	t.totalRuns = 0
	t.totalDur = 0
	t.perAgent = make(map[string]*AgentTotals)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
