package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// DelegationOp is one of the tool operations a hierarchical supervisor's
// agent runner exposes; invoking one calls back into the coordinator.
type DelegationOp string

const (
	OpDelegateTask    DelegationOp = "delegate_task"
	OpCheckProgress   DelegationOp = "check_progress"
	OpRequestRevision DelegationOp = "request_revision"
)

// WorkerDescription is what the supervisor sees about each available worker.
type WorkerDescription struct {
	Name      string
	Description string
	Expertise []string
}

// HierarchicalConfig configures the hierarchical strategy.
type HierarchicalConfig struct {
	MaxDelegationDepth int
	WorkerCommunication bool
	RouteThrough       string
	Visibility         string
}

// Hierarchical implements delegation via a single supervisor agent whose
// tools call back into the coordinator to invoke workers; the strategy
// itself never issues worker calls directly.
type Hierarchical struct {
	base
	cfg HierarchicalConfig
}

// NewHierarchical constructs a Hierarchical strategy requiring exactly one
// supervisor-role agent to be registered with coord.
func NewHierarchical(coord *coordinator.Coordinator, cfg HierarchicalConfig) (*Hierarchical, error) {
	if cfg.MaxDelegationDepth <= 0 {
		cfg.MaxDelegationDepth = 3
	}
	if _, _, err := findSupervisor(coord); err != nil {
		return nil, err
	}
	return &Hierarchical{base: base{coord: coord}, cfg: cfg}, nil
}

func (h *Hierarchical) Name() string { return "hierarchical" }

func findSupervisor(coord *coordinator.Coordinator) (string, *agent.SwarmAgent, error) {
	var name string
	var sa *agent.SwarmAgent
	count := 0
	for _, n := range coord.AgentNames() {
		a, _ := coord.GetAgent(n)
		if a.Metadata.Role == agent.RoleSupervisor {
			name, sa = n, a
			count++
		}
	}
	if count != 1 {
		return "", nil, fmt.Errorf("%w: hierarchical requires exactly one supervisor, found %d", swarmerr.ErrInvalidConfig, count)
	}
	return name, sa, nil
}

func workerDescriptions(coord *coordinator.Coordinator) []WorkerDescription {
	var out []WorkerDescription
	for _, n := range coord.AgentNames() {
		a, _ := coord.GetAgent(n)
		if a.Metadata.Role == agent.RoleWorker {
			out = append(out, WorkerDescription{
				Name:        n,
				Description: a.Metadata.Description,
				Expertise:   a.Metadata.Expertise,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *Hierarchical) Execute(ctx context.Context, opts Options) (Result, error) {
	name, _, err := findSupervisor(h.coord)
	if err != nil {
		return Result{}, err
	}

	h.coord.Blackboard.Write("tasks", []interface{}{}, "system")
	h.coord.Blackboard.Write("workerResults", map[string]interface{}{}, "system")

	workers := workerDescriptions(h.coord)
	instructions := delegationInstructions(workers, h.cfg)

	supervisorInput := opts.Input + "\n\n" + instructions
	supervisorResult, err := h.coord.RunAgent(ctx, name, supervisorInput)
	if err != nil {
		return Result{}, err
	}

	res := newResult(supervisorResult.Output)
	res.AgentResults[name] = supervisorResult

	for _, w := range workers {
		if sa, ok := h.coord.GetAgent(w.Name); ok && sa.LastResult != nil {
			res.AgentResults[w.Name] = *sa.LastResult
		}
	}
	res.Byproducts["availableWorkers"] = workers
	return res, nil
}

func delegationInstructions(workers []WorkerDescription, cfg HierarchicalConfig) string {
	var b strings.Builder
	b.WriteString("You may delegate subtasks using: delegate_task, check_progress, request_revision.\n")
	b.WriteString(fmt.Sprintf("Maximum delegation depth: %d.\n", cfg.MaxDelegationDepth))
	if len(workers) == 0 {
		b.WriteString("No workers are currently available.\n")
		return b.String()
	}
	b.WriteString("Available workers:\n")
	for _, w := range workers {
		b.WriteString(fmt.Sprintf("- %s: %s (expertise: %s)\n", w.Name, w.Description, strings.Join(w.Expertise, ", ")))
	}
	return b.String()
}
