package strategy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// stageRunner returns a fixed output per agent name, looking it up from a
// map so each pipeline stage can be scripted independently.
type stageRunner struct {
	outputs map[string]string
}

func (r *stageRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	return agent.RunResult{Output: r.outputs[a.GetName()]}, nil
}

func newPipelineCoordinator(outputs map[string]string) *coordinator.Coordinator {
	c := coordinator.New(coordinator.Options{Runner: &stageRunner{outputs: outputs}})
	for name := range outputs {
		c.RegisterAgent(name, agent.NewSwarmAgent(&stubAgent{name: name}, agent.Metadata{}), nil, nil)
	}
	return c
}

func TestNewPipelineRequiresAtLeastOneStage(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{"alice": "ok"})
	if _, err := NewPipeline(c, PipelineConfig{}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with no stages, got %v", err)
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{
		"draft":  "a draft",
		"review": "looks good",
	})
	p, err := NewPipeline(c, PipelineConfig{Stages: []Stage{
		{Name: "drafting", Agent: "draft"},
		{Name: "reviewing", Agent: "review"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Execute(context.Background(), Options{Input: "write something"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "looks good" {
		t.Fatalf("expected final output from last stage, got %q", res.Output)
	}
	order, ok := res.Byproducts["stageOrder"].([]string)
	if !ok || len(order) != 2 || order[0] != "drafting" || order[1] != "reviewing" {
		t.Fatalf("expected stage order [drafting reviewing], got %v", order)
	}
}

func TestPipelineGatePassContinues(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{"check": "all good"})
	p, err := NewPipeline(c, PipelineConfig{Stages: []Stage{
		{Name: "validate", Agent: "check", Gate: true},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Execute(context.Background(), Options{Input: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "all good" {
		t.Fatalf("expected gate pass to continue normally, got %q", res.Output)
	}
}

func TestPipelineGateFailAbortsByDefault(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{"check": "this failed"})
	p, err := NewPipeline(c, PipelineConfig{Stages: []Stage{
		{Name: "validate", Agent: "check", Gate: true},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Execute(context.Background(), Options{Input: "go"}); !errors.Is(err, swarmerr.ErrPipelineAborted) {
		t.Fatalf("expected ErrPipelineAborted, got %v", err)
	}
}

func TestPipelineGateFailSkipAdvances(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{
		"check": "this failed",
		"final": "done",
	})
	p, err := NewPipeline(c, PipelineConfig{
		Stages: []Stage{
			{Name: "validate", Agent: "check", Gate: true},
			{Name: "finish", Agent: "final"},
		},
		Gates: map[string]Gate{"validate": {OnFail: GateSkip}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Execute(context.Background(), Options{Input: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "done" {
		t.Fatalf("expected skip to reach the final stage, got %q", res.Output)
	}
}

// recordingStageRunner behaves like stageRunner but also records every
// input handed to each agent, so tests can assert on stage context
// threading without the agent's own logic caring about it.
type recordingStageRunner struct {
	outputs map[string]string
	mu      sync.Mutex
	inputs  map[string][]string
}

func (r *recordingStageRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	name := a.GetName()
	r.mu.Lock()
	if r.inputs == nil {
		r.inputs = make(map[string][]string)
	}
	r.inputs[name] = append(r.inputs[name], input)
	r.mu.Unlock()
	return agent.RunResult{Output: r.outputs[name]}, nil
}

func TestPipelineStageInvocationCarriesStageContext(t *testing.T) {
	runner := &recordingStageRunner{outputs: map[string]string{
		"draft":  "a draft",
		"review": "looks good",
	}}
	c := coordinator.New(coordinator.Options{Runner: runner})
	c.RegisterAgent("draft", agent.NewSwarmAgent(&stubAgent{name: "draft"}, agent.Metadata{}), nil, nil)
	c.RegisterAgent("review", agent.NewSwarmAgent(&stubAgent{name: "review"}, agent.Metadata{}), nil, nil)

	p, err := NewPipeline(c, PipelineConfig{Stages: []Stage{
		{Name: "drafting", Agent: "draft"},
		{Name: "reviewing", Agent: "review"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Execute(context.Background(), Options{Input: "write something"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	draftInput := runner.inputs["draft"][0]
	if !strings.Contains(draftInput, "stage 1/2") || !strings.Contains(draftInput, `"drafting"`) ||
		!strings.Contains(draftInput, "This is the first stage.") || !strings.Contains(draftInput, "write something") {
		t.Fatalf("expected first stage input to carry stage context, got %q", draftInput)
	}

	reviewInput := runner.inputs["review"][0]
	if !strings.Contains(reviewInput, "stage 2/2") || !strings.Contains(reviewInput, "This is the final stage.") ||
		!strings.Contains(reviewInput, "Previous stage outputs:") || !strings.Contains(reviewInput, "a draft") {
		t.Fatalf("expected second stage input to carry previous outputs, got %q", reviewInput)
	}
}

func TestPipelineGateRetryPreviousExceedsMaxRetries(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{
		"draft": "a draft",
		"check": "this failed",
	})
	p, err := NewPipeline(c, PipelineConfig{
		Stages: []Stage{
			{Name: "drafting", Agent: "draft"},
			{Name: "validate", Agent: "check", Gate: true},
		},
		Gates: map[string]Gate{"validate": {OnFail: GateRetryPrevious, MaxRetries: 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Execute(context.Background(), Options{Input: "go"}); !errors.Is(err, swarmerr.ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestPipelineGateGotoUnknownTargetFails(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{"check": "this failed"})
	p, err := NewPipeline(c, PipelineConfig{
		Stages: []Stage{
			{Name: "validate", Agent: "check", Gate: true},
		},
		Gates: map[string]Gate{"validate": {OnFail: GateFailAction(GateGotoPrefix + "nonexistent")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Execute(context.Background(), Options{Input: "go"}); !errors.Is(err, swarmerr.ErrTargetStageNotFound) {
		t.Fatalf("expected ErrTargetStageNotFound, got %v", err)
	}
}

func TestPipelineGateGotoJumpsToTargetStage(t *testing.T) {
	c := newPipelineCoordinator(map[string]string{
		"check":  "this failed",
		"remedy": "fixed now",
	})
	p, err := NewPipeline(c, PipelineConfig{
		Stages: []Stage{
			{Name: "validate", Agent: "check", Gate: true},
			{Name: "remediate", Agent: "remedy"},
		},
		Gates: map[string]Gate{"validate": {OnFail: GateFailAction(GateGotoPrefix + "remediate")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Execute(context.Background(), Options{Input: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "fixed now" {
		t.Fatalf("expected goto to land on the remediate stage, got %q", res.Output)
	}
}
