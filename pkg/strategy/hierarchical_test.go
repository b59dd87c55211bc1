package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

func newHierarchicalCoordinator(roles map[string]agent.Role) *coordinator.Coordinator {
	c := coordinator.New(coordinator.Options{Runner: &echoRunner{}})
	for name, role := range roles {
		c.RegisterAgent(name, agent.NewSwarmAgent(nil, agent.Metadata{Role: role}), nil, nil)
	}
	return c
}

func TestNewHierarchicalRequiresExactlyOneSupervisor(t *testing.T) {
	none := newHierarchicalCoordinator(map[string]agent.Role{"alice": agent.RoleWorker})
	if _, err := NewHierarchical(none, HierarchicalConfig{}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with no supervisor, got %v", err)
	}

	two := newHierarchicalCoordinator(map[string]agent.Role{
		"alice": agent.RoleSupervisor,
		"bob":   agent.RoleSupervisor,
	})
	if _, err := NewHierarchical(two, HierarchicalConfig{}); !errors.Is(err, swarmerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with two supervisors, got %v", err)
	}
}

func TestNewHierarchicalDefaultsMaxDepth(t *testing.T) {
	c := newHierarchicalCoordinator(map[string]agent.Role{"boss": agent.RoleSupervisor})
	h, err := NewHierarchical(c, HierarchicalConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.cfg.MaxDelegationDepth != 3 {
		t.Errorf("expected default max delegation depth 3, got %d", h.cfg.MaxDelegationDepth)
	}
}

func TestHierarchicalExecuteRunsSupervisorAndListsWorkers(t *testing.T) {
	c := newHierarchicalCoordinator(map[string]agent.Role{
		"boss":    agent.RoleSupervisor,
		"alice":   agent.RoleWorker,
		"bob":     agent.RoleWorker,
	})
	h, err := NewHierarchical(c, HierarchicalConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := h.Execute(context.Background(), Options{Input: "ship the feature"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.AgentResults["boss"]; !ok {
		t.Fatal("expected supervisor result present")
	}

	workers, ok := res.Byproducts["availableWorkers"].([]WorkerDescription)
	if !ok || len(workers) != 2 {
		t.Fatalf("expected 2 available workers listed, got %+v", res.Byproducts["availableWorkers"])
	}
}

func TestHierarchicalExecuteSeedsBlackboardSections(t *testing.T) {
	c := newHierarchicalCoordinator(map[string]agent.Role{"boss": agent.RoleSupervisor})
	h, _ := NewHierarchical(c, HierarchicalConfig{})

	if _, err := h.Execute(context.Background(), Options{Input: "go"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !c.Blackboard.Has("tasks") {
		t.Error("expected hierarchical execute to seed a tasks section")
	}
	if !c.Blackboard.Has("workerResults") {
		t.Error("expected hierarchical execute to seed a workerResults section")
	}
}
