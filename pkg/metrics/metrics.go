package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector AgentPipe records against,
// retargeted from the teacher's per-conversation-turn counters to
// per-coordinator-run, per-strategy-round counters.
type Metrics struct {
	agentRequests    *prometheus.CounterVec
	agentDuration    *prometheus.HistogramVec
	agentTokens      *prometheus.CounterVec
	agentCost        *prometheus.CounterVec
	agentErrors      *prometheus.CounterVec
	activeSwarms     prometheus.Gauge
	strategyRounds   *prometheus.CounterVec
	messageSize      prometheus.Histogram
	retryAttempts    *prometheus.CounterVec
	rateLimitHits    *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	resourceBudget   *prometheus.GaugeVec
}

// NewMetrics registers every collector against registry and returns the
// handle used to record coordinator/strategy activity.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		agentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_agent_requests_total",
			Help: "Total agent invocations by agent name, type, and outcome.",
		}, []string{"agent", "type", "status"}),

		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentpipe_agent_request_duration_seconds",
			Help:    "Agent invocation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent", "type"}),

		agentTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_agent_tokens_total",
			Help: "Total tokens consumed by agent and type.",
		}, []string{"agent", "type"}),

		agentCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_agent_cost_usd_total",
			Help: "Total estimated cost in USD by agent and type.",
		}, []string{"agent", "type"}),

		agentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_agent_errors_total",
			Help: "Total agent invocation failures by agent and error kind.",
		}, []string{"agent", "kind"}),

		activeSwarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentpipe_active_swarms",
			Help: "Current number of swarm runs in progress.",
		}),

		strategyRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_strategy_rounds_total",
			Help: "Total strategy rounds/stages executed by strategy name.",
		}, []string{"strategy"}),

		messageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentpipe_message_size_bytes",
			Help:    "Size distribution of agent response bodies.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),

		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_retry_attempts_total",
			Help: "Total retry attempts by agent.",
		}, []string{"agent"}),

		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpipe_rate_limit_hits_total",
			Help: "Total times an agent's rate limiter delayed a call.",
		}, []string{"agent"}),

		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentpipe_circuit_breaker_state",
			Help: "Circuit breaker state by agent: 0=closed, 1=half-open, 2=open.",
		}, []string{"agent"}),

		resourceBudget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentpipe_resource_budget_used_ratio",
			Help: "Fraction of the configured resource budget consumed, by kind (tokens, cost, time).",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.agentRequests,
		m.agentDuration,
		m.agentTokens,
		m.agentCost,
		m.agentErrors,
		m.activeSwarms,
		m.strategyRounds,
		m.messageSize,
		m.retryAttempts,
		m.rateLimitHits,
		m.breakerState,
		m.resourceBudget,
	)

	return m
}

// RecordAgentRun records the outcome of one agent invocation.
func (m *Metrics) RecordAgentRun(agentName, agentType, status string, duration time.Duration, tokens int, cost float64, responseSize int) {
	m.agentRequests.WithLabelValues(agentName, agentType, status).Inc()
	m.agentDuration.WithLabelValues(agentName, agentType).Observe(duration.Seconds())
	m.agentTokens.WithLabelValues(agentName, agentType).Add(float64(tokens))
	m.agentCost.WithLabelValues(agentName, agentType).Add(cost)
	if responseSize > 0 {
		m.messageSize.Observe(float64(responseSize))
	}
}

// RecordAgentError records an agent invocation failure.
func (m *Metrics) RecordAgentError(agentName, kind string) {
	m.agentErrors.WithLabelValues(agentName, kind).Inc()
}

// SetActiveSwarms sets the current number of in-flight swarm runs.
func (m *Metrics) SetActiveSwarms(n int) {
	m.activeSwarms.Set(float64(n))
}

// IncStrategyRound records one completed round/stage of strategy.
func (m *Metrics) IncStrategyRound(strategy string) {
	m.strategyRounds.WithLabelValues(strategy).Inc()
}

// IncRetryAttempt records one retry attempt for agentName.
func (m *Metrics) IncRetryAttempt(agentName string) {
	m.retryAttempts.WithLabelValues(agentName).Inc()
}

// IncRateLimitHit records one rate-limiter delay for agentName.
func (m *Metrics) IncRateLimitHit(agentName string) {
	m.rateLimitHits.WithLabelValues(agentName).Inc()
}

// BreakerState values for SetBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// SetBreakerState records agentName's circuit breaker state.
func (m *Metrics) SetBreakerState(agentName string, state float64) {
	m.breakerState.WithLabelValues(agentName).Set(state)
}

// SetResourceBudgetUsed records the fraction of kind's budget consumed so far.
func (m *Metrics) SetResourceBudgetUsed(kind string, ratio float64) {
	m.resourceBudget.WithLabelValues(kind).Set(ratio)
}
