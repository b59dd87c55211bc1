package agent

import "time"

// Usage carries the token/cost/duration accounting for a single agent
// invocation, consumed by the resource tracker.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64
	Duration     time.Duration
}

// ToolCall records one tool invocation an agent made while producing a
// RunResult, kept for traceability; the core never executes tools itself.
type ToolCall struct {
	Name      string
	Arguments map[string]interface{}
	Result    interface{}
}

// RunResult is what a single agent invocation produces: text output, an
// optional structured payload, usage accounting, and any tool-call traces.
type RunResult struct {
	Output    string
	Payload   interface{}
	Usage     Usage
	ToolCalls []ToolCall
}

// Role is a SwarmAgent's function within a strategy.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleWorker     Role = "worker"
	RoleModerator  Role = "moderator"
	RoleRouter     Role = "router"
	RoleAdvocate   Role = "advocate"
	RoleCritic     Role = "critic"
	RoleUnspecified Role = "unspecified"
)

// State is a SwarmAgent's lifecycle state within one coordinator run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Metadata is the strategy-facing description of a SwarmAgent, distinct
// from the lower-level AgentConfig used to construct the underlying Agent.
type Metadata struct {
	Role       Role
	Expertise  []string
	Weight     float64
	Priority   int
	Locked     bool
	Description string
}

// SwarmAgent is the coordinator's runtime wrapping of an Agent: the
// underlying collaborator plus the mutable state a swarm run tracks
// against it. Created once at coordinator construction and never dropped
// for the lifetime of the run; State and LastResult are the only parts
// mutated during normal operation.
type SwarmAgent struct {
	Agent      Agent
	Metadata   Metadata
	State      State
	TokenCount int
	LastResult *RunResult
}

// NewSwarmAgent wraps an Agent with idle lifecycle state.
func NewSwarmAgent(a Agent, meta Metadata) *SwarmAgent {
	return &SwarmAgent{Agent: a, Metadata: meta, State: StateIdle}
}
