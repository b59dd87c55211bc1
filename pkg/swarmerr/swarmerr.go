// Package swarmerr defines the sentinel error taxonomy shared by the
// coordinator, the strategies, and the swarm facade. Wrap these with
// fmt.Errorf("...: %w", ErrX) to add context while remaining matchable
// with errors.Is.
package swarmerr

import "errors"

var (
	// ErrNoAgents is returned when a strategy or the coordinator is asked
	// to run with an empty agent roster.
	ErrNoAgents = errors.New("swarmcore: no agents configured")

	// ErrUnknownAgent is returned when a message, bid, or delegation
	// references an agent ID that is not registered with the coordinator.
	ErrUnknownAgent = errors.New("swarmcore: unknown agent")

	// ErrCircuitOpen is returned by the coordinator when an agent's
	// circuit breaker is open and the call is short-circuited.
	ErrCircuitOpen = errors.New("swarmcore: circuit breaker open")

	// ErrBudgetExceeded is returned when a resource tracker's configured
	// budget (tokens, cost, or wall-clock time) has been exhausted.
	ErrBudgetExceeded = errors.New("swarmcore: resource budget exceeded")

	// ErrRetriesExhausted is returned when an agent invocation has failed
	// every configured retry attempt.
	ErrRetriesExhausted = errors.New("swarmcore: retries exhausted")

	// ErrAborted is returned by any in-flight operation once the swarm or
	// coordinator has been aborted.
	ErrAborted = errors.New("swarmcore: run aborted")

	// ErrInvalidConfig is returned when a strategy's configuration keys
	// are missing or inconsistent (e.g. a pipeline with no stages).
	ErrInvalidConfig = errors.New("swarmcore: invalid configuration")

	// ErrStaleWrite is returned by the blackboard when a compare-and-swap
	// style update targets a version that has since moved.
	ErrStaleWrite = errors.New("swarmcore: stale blackboard write")

	// ErrNoConsensus is returned by the consensus strategy when no option
	// reaches the configured resolution threshold and no tie-break applies.
	ErrNoConsensus = errors.New("swarmcore: no consensus reached")

	// ErrNoBids is returned by the auction strategy when no agent submits
	// a usable bid for a task.
	ErrNoBids = errors.New("swarmcore: no bids received")

	// ErrPipelineAborted is returned when a pipeline stage's failure
	// action is "abort" and the pipeline stops short of its last stage.
	ErrPipelineAborted = errors.New("swarmcore: pipeline aborted by stage failure")

	// ErrTimeout is returned when an agent invocation exceeds its
	// configured per-call deadline.
	ErrTimeout = errors.New("swarmcore: agent call timed out")

	// ErrMaxRetriesExceeded is returned by the pipeline strategy when a
	// "retry-previous" gate has been retried its configured maximum
	// number of times without passing. Distinct from ErrRetriesExhausted,
	// which covers the coordinator's own agent-invocation retry policy.
	ErrMaxRetriesExceeded = errors.New("swarmcore: stage retry limit exceeded")

	// ErrTargetStageNotFound is returned when a pipeline gate's
	// "goto:<stage>" failure action names a stage that does not exist.
	ErrTargetStageNotFound = errors.New("swarmcore: goto target stage not found")
)
