package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// GateCondition decides whether a stage's output passes its gate. The
// default, when unset, flags output containing "error", "failed", or
// "cannot" (case-insensitive) as a failure.
type GateCondition func(output string) bool

// GateFailAction selects what happens when a gate condition fails.
type GateFailAction string

const (
	GateAbort         GateFailAction = "abort"
	GateSkip          GateFailAction = "skip"
	GateRetryPrevious GateFailAction = "retry-previous"
	// GateGotoPrefix is prepended to a target stage name, e.g. "goto:validate".
	GateGotoPrefix = "goto:"
)

// Gate configures one stage's quality check.
type Gate struct {
	Condition  GateCondition
	OnFail     GateFailAction
	MaxRetries int
}

// StageInputFunc computes a stage's input from the previous stage's output.
type StageInputFunc func(previousOutput string, stage Stage, stageIndex int) string

// Stage is one step of a pipeline, bound to a specific agent and
// optionally acting as a quality gate.
type Stage struct {
	Name  string
	Agent string
	Gate  bool
}

// PipelineConfig configures the pipeline strategy.
type PipelineConfig struct {
	Stages     []Stage
	Gates      map[string]Gate
	StageInput StageInputFunc
}

// Pipeline executes a single forward sweep over its stages with indexed
// jumps driven by gate failure actions.
type Pipeline struct {
	base
	cfg PipelineConfig
}

func defaultGateCondition(output string) bool {
	lower := strings.ToLower(output)
	for _, bad := range []string{"error", "failed", "cannot"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return true
}

// NewPipeline constructs a Pipeline strategy requiring at least one stage.
func NewPipeline(coord *coordinator.Coordinator, cfg PipelineConfig) (*Pipeline, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline requires at least one stage", swarmerr.ErrInvalidConfig)
	}
	if cfg.Gates == nil {
		cfg.Gates = make(map[string]Gate)
	}
	return &Pipeline{base: base{coord: coord}, cfg: cfg}, nil
}

func (p *Pipeline) Name() string { return "pipeline" }

func (p *Pipeline) Execute(ctx context.Context, opts Options) (Result, error) {
	stages := p.cfg.Stages
	stageOutputs := make(map[string]string)
	stageOrder := []string{}
	currentInput := opts.Input
	lastOutput := ""

	res := newResult("")

	index := 0
	for index >= 0 && index < len(stages) {
		stage := stages[index]
		input := p.stageInput(currentInput, lastOutput, stage, index)
		input = withStageContext(stage, index, len(stages), stageOrder, stageOutputs, input)

		p.coord.Events.Emit("pipeline:stage", map[string]interface{}{
			"stage": stage.Name, "index": index, "total": len(stages),
		}, stage.Agent)

		result, err := p.coord.RunAgent(ctx, stage.Agent, input)
		if err != nil {
			return Result{}, err
		}

		key := stageKey(stage.Name, stageOutputs)
		stageOutputs[key] = result.Output
		stageOrder = append(stageOrder, key)
		res.AgentResults[stage.Agent] = result
		lastOutput = result.Output

		p.coord.Events.Emit("pipeline:stage:complete", map[string]interface{}{
			"stage": stage.Name, "index": index,
		}, stage.Agent)

		if !stage.Gate {
			index++
			continue
		}

		gate := p.cfg.Gates[stage.Name]
		condition := gate.Condition
		if condition == nil {
			condition = defaultGateCondition
		}

		if condition(result.Output) {
			p.coord.Events.Emit("pipeline:gate:pass", map[string]interface{}{"stage": stage.Name}, stage.Agent)
			index++
			continue
		}

		p.coord.Events.Emit("pipeline:gate:fail", map[string]interface{}{"stage": stage.Name}, stage.Agent)

		nextIndex, err := p.handleGateFailure(stage, gate, stageOutputs, index)
		if err != nil {
			return Result{}, err
		}
		index = nextIndex
	}

	res.Output = lastOutput
	payload := make(map[string]string, len(stageOutputs))
	for k, v := range stageOutputs {
		payload[k] = v
	}
	res.Byproducts["stageOutputs"] = payload
	res.Byproducts["stageOrder"] = stageOrder
	return res, nil
}

// withStageContext prepends the stage's position, boundary flags, and the
// outputs of every stage visited so far to its computed input, giving the
// stage agent the instructions it needs to act on that position.
func withStageContext(stage Stage, index, total int, stageOrder []string, stageOutputs map[string]string, input string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Pipeline stage %d/%d: %q.\n", index+1, total, stage.Name))
	if index == 0 {
		b.WriteString("This is the first stage.\n")
	}
	if index == total-1 {
		b.WriteString("This is the final stage.\n")
	}
	if len(stageOrder) > 0 {
		b.WriteString("Previous stage outputs:\n")
		for _, k := range stageOrder {
			b.WriteString(fmt.Sprintf("- %s: %s\n", k, stageOutputs[k]))
		}
	}
	b.WriteString("\nInstructions: ")
	b.WriteString(input)
	return b.String()
}

func stageKey(name string, existing map[string]string) string {
	if _, ok := existing[name]; !ok {
		return name
	}
	n := 1
	for {
		candidate := fmt.Sprintf("%s#%d", name, n)
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
		n++
	}
}

func (p *Pipeline) stageInput(original, previous string, stage Stage, index int) string {
	if p.cfg.StageInput != nil {
		return p.cfg.StageInput(previous, stage, index)
	}
	if index == 0 {
		return original
	}
	return fmt.Sprintf("Previous stage output:\n%s\n\nContinue with stage %q.", previous, stage.Name)
}

func (p *Pipeline) handleGateFailure(stage Stage, gate Gate, stageOutputs map[string]string, index int) (int, error) {
	switch {
	case gate.OnFail == GateAbort || gate.OnFail == "":
		return 0, fmt.Errorf("%w: stage %s", swarmerr.ErrPipelineAborted, stage.Name)
	case gate.OnFail == GateSkip:
		return index + 1, nil
	case gate.OnFail == GateRetryPrevious:
		retries := countStageRetries(stage.Name, stageOutputs)
		if gate.MaxRetries > 0 && retries >= gate.MaxRetries {
			return 0, fmt.Errorf("%w: stage %s", swarmerr.ErrMaxRetriesExceeded, stage.Name)
		}
		if index == 0 {
			return 0, nil
		}
		return index - 1, nil
	case strings.HasPrefix(string(gate.OnFail), GateGotoPrefix):
		target := strings.TrimPrefix(string(gate.OnFail), GateGotoPrefix)
		for i, s := range p.cfg.Stages {
			if s.Name == target {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", swarmerr.ErrTargetStageNotFound, target)
	default:
		return 0, fmt.Errorf("%w: unknown gate failure action %q", swarmerr.ErrInvalidConfig, gate.OnFail)
	}
}

func countStageRetries(name string, stageOutputs map[string]string) int {
	count := 0
	for k := range stageOutputs {
		if strings.HasPrefix(k, name) {
			count++
		}
	}
	return count
}
