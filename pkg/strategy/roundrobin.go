package strategy

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// Rotation selects how the next non-sticky agent is chosen.
type Rotation string

const (
	RotationSequential Rotation = "sequential"
	RotationRandom     Rotation = "random"
)

// StickyKeyFunc derives a sticky-assignment key from the strategy input.
type StickyKeyFunc func(input string) string

// RoundRobinConfig configures the round-robin strategy.
type RoundRobinConfig struct {
	Sticky    bool
	StickyKey StickyKeyFunc
	Rotation  Rotation
}

// RoundRobin cycles through the registered agents, optionally pinning a
// given input key to the agent that first handled it.
type RoundRobin struct {
	base
	cfg RoundRobinConfig

	mu        sync.Mutex
	current   int
	sticky    map[string]string
}

// NewRoundRobin constructs a RoundRobin strategy requiring at least one
// registered agent.
func NewRoundRobin(coord *coordinator.Coordinator, cfg RoundRobinConfig) (*RoundRobin, error) {
	if len(coord.AgentNames()) == 0 {
		return nil, swarmerr.ErrNoAgents
	}
	if cfg.Rotation == "" {
		cfg.Rotation = RotationSequential
	}
	return &RoundRobin{base: base{coord: coord}, cfg: cfg, sticky: make(map[string]string)}, nil
}

func (r *RoundRobin) Name() string { return "round-robin" }

func (r *RoundRobin) Execute(ctx context.Context, opts Options) (Result, error) {
	names := r.coord.AgentNames()
	if len(names) == 0 {
		return Result{}, swarmerr.ErrNoAgents
	}

	selected, index := r.selectAgent(names, opts.Input)

	result, err := r.coord.RunAgent(ctx, selected, opts.Input)
	if err != nil {
		return Result{}, err
	}

	r.coord.Events.Emit("round-robin:assigned", map[string]interface{}{"agent": selected, "index": index}, selected)

	res := newResult(result.Output)
	res.AgentResults[selected] = result
	return res, nil
}

func (r *RoundRobin) selectAgent(names []string, input string) (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.Sticky && r.cfg.StickyKey != nil {
		key := r.cfg.StickyKey(input)
		if assigned, ok := r.sticky[key]; ok {
			for i, n := range names {
				if n == assigned {
					return n, i
				}
			}
		}
		// Prior assignment missing or agent gone: fall through to rotation
		// and record the new mapping without advancing the index, matching
		// the source behavior this spec intentionally preserves.
		selected, index := r.peek(names)
		r.sticky[key] = selected
		return selected, index
	}

	return r.rotate(names)
}

// peek picks the agent the next rotate call would pick, without
// consuming it: the sequential index stays put, so the following
// non-sticky call lands on the same agent.
func (r *RoundRobin) peek(names []string) (string, int) {
	if len(names) == 1 {
		return names[0], 0
	}
	switch r.cfg.Rotation {
	case RotationRandom:
		idx := rand.Intn(len(names))
		return names[idx], idx
	default:
		idx := r.current % len(names)
		return names[idx], idx
	}
}

func (r *RoundRobin) rotate(names []string) (string, int) {
	if len(names) == 1 {
		return names[0], 0
	}
	switch r.cfg.Rotation {
	case RotationRandom:
		idx := rand.Intn(len(names))
		return names[idx], idx
	default:
		idx := r.current % len(names)
		r.current = (r.current + 1) % len(names)
		return names[idx], idx
	}
}

// Reset zeroes the rotation index and clears sticky assignments.
func (r *RoundRobin) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = 0
	r.sticky = make(map[string]string)
}
