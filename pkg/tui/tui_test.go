package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/strategy"
	"github.com/shawkym/agentpipe/pkg/swarm"
)

type fakeStrategy struct{ result strategy.Result }

func (f *fakeStrategy) Name() string { return "fake" }
func (f *fakeStrategy) Execute(ctx context.Context, opts strategy.Options) (strategy.Result, error) {
	return f.result, nil
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, a agent.Agent, input string, swarmCtx coordinator.Context) (agent.RunResult, error) {
	return agent.RunResult{Output: input}, nil
}

func newTestModel() Model {
	c := coordinator.New(coordinator.Options{SwarmName: "test-swarm", Runner: noopRunner{}})
	sw := swarm.New(c, &fakeStrategy{result: strategy.Result{Output: "done"}})
	return Model{
		ctx:           context.Background(),
		sw:            sw,
		events:        make([]events.Event, 0),
		searchResults: make([]int, 0),
		currentSearch: -1,
	}
}

func TestInitReturnsStartCommand(t *testing.T) {
	m := newTestModel()
	if cmd := m.Init(); cmd == nil {
		t.Error("expected Init to return a non-nil command")
	}
}

func TestWindowSizeMsgMarksReady(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	mm := updated.(Model)
	if !mm.ready {
		t.Error("expected the model to become ready after a WindowSizeMsg")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
}

func TestEventMsgAppendsAndTracksRunningState(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)

	updated, _ = m.Update(eventMsg{event: events.Event{Type: "swarm:start"}})
	m = updated.(Model)
	if len(m.events) != 1 || !m.running {
		t.Fatalf("expected swarm:start to be recorded and running=true, got events=%d running=%v", len(m.events), m.running)
	}

	updated, _ = m.Update(eventMsg{event: events.Event{Type: "swarm:paused"}})
	m = updated.(Model)
	if m.running {
		t.Error("expected swarm:paused to clear running")
	}
}

func TestRunDoneMarksDoneAndStoresResult(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(runDone{result: strategy.Result{Output: "final"}})
	m = updated.(Model)
	if !m.done || m.result.Output != "final" {
		t.Fatalf("expected done=true and result stored, got done=%v result=%+v", m.done, m.result)
	}
}

func TestFilterCommandNarrowsVisibleEvents(t *testing.T) {
	m := newTestModel()
	m.events = []events.Event{
		{Type: "agent:start", AgentName: "alice"},
		{Type: "agent:start", AgentName: "bob"},
	}
	m.commandInput.SetValue("filter alice")
	m.executeCommand()

	visible := m.visibleEvents()
	if len(visible) != 1 || visible[0].AgentName != "alice" {
		t.Fatalf("expected only alice's events visible, got %+v", visible)
	}
}

func TestClearCommandResetsFilters(t *testing.T) {
	m := newTestModel()
	m.filterAgent = "alice"
	m.filterType = "agent:"
	m.commandInput.SetValue("clear")
	m.executeCommand()

	if m.filterAgent != "" || m.filterType != "" {
		t.Fatalf("expected clear to reset both filters, got agent=%q type=%q", m.filterAgent, m.filterType)
	}
}

func TestPerformSearchFindsMatchingEvents(t *testing.T) {
	m := newTestModel()
	m.events = []events.Event{
		{Type: "agent:start", AgentName: "alice"},
		{Type: "agent:complete", AgentName: "bob"},
	}
	m.searchInput.SetValue("bob")
	m.performSearch()

	if len(m.searchResults) != 1 {
		t.Fatalf("expected exactly one match for 'bob', got %v", m.searchResults)
	}
}

func TestViewRendersWithoutPanicAfterReady(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)
	if m.View() == "" {
		t.Error("expected a non-empty view once ready")
	}
}
