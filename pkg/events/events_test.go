package events

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestOnReceivesTypedEvents(t *testing.T) {
	e := New()
	var got Event
	e.On("agent:start", func(ev Event) { got = ev })

	e.Emit("agent:start", "payload", "alice")

	if got.Type != "agent:start" || got.AgentName != "alice" || got.Data != "payload" {
		t.Fatalf("handler did not receive expected event, got %+v", got)
	}
}

func TestOnIgnoresOtherTypes(t *testing.T) {
	e := New()
	called := false
	e.On("agent:start", func(Event) { called = true })

	e.Emit("agent:complete", nil, "alice")

	if called {
		t.Error("handler for agent:start should not fire for agent:complete")
	}
}

func TestWildcardReceivesEverything(t *testing.T) {
	e := New()
	var types []string
	e.On("*", func(ev Event) { types = append(types, ev.Type) })

	e.Emit("agent:start", nil, "alice")
	e.Emit("agent:complete", nil, "alice")

	if len(types) != 2 || types[0] != "agent:start" || types[1] != "agent:complete" {
		t.Fatalf("expected both events on wildcard, got %v", types)
	}
}

func TestTypedHandlersRunBeforeWildcard(t *testing.T) {
	e := New()
	var order []string
	e.On("agent:start", func(Event) { order = append(order, "typed") })
	e.On("*", func(Event) { order = append(order, "wildcard") })

	e.Emit("agent:start", nil, "alice")

	if len(order) != 2 || order[0] != "typed" || order[1] != "wildcard" {
		t.Fatalf("expected typed then wildcard, got %v", order)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	e := New()
	var count int32
	e.Once("agent:start", func(Event) { atomic.AddInt32(&count, 1) })

	e.Emit("agent:start", nil, "alice")
	e.Emit("agent:start", nil, "alice")

	if count != 1 {
		t.Errorf("expected once-handler to fire exactly once, got %d", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := New()
	var count int32
	unsubscribe := e.On("agent:start", func(Event) { atomic.AddInt32(&count, 1) })

	e.Emit("agent:start", nil, "alice")
	unsubscribe()
	e.Emit("agent:start", nil, "alice")

	if count != 1 {
		t.Errorf("expected 1 delivery before unsubscribe, got %d", count)
	}
}

func TestOffClearsTypedSubscriptions(t *testing.T) {
	e := New()
	called := false
	e.On("agent:start", func(Event) { called = true })

	e.Off("agent:start")
	e.Emit("agent:start", nil, "alice")

	if called {
		t.Error("handler should not fire after Off")
	}
}

func TestRemoveAllListenersClearsTypedAndWildcard(t *testing.T) {
	e := New()
	called := false
	e.On("agent:start", func(Event) { called = true })
	e.On("*", func(Event) { called = true })

	e.RemoveAllListeners()
	e.Emit("agent:start", nil, "alice")

	if called {
		t.Error("no handler should fire after RemoveAllListeners")
	}
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	e := New()
	e.On("agent:start", func(Event) { panic("boom") })

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Emit should recover handler panics, got panic: %v", r)
		}
	}()
	e.Emit("agent:start", nil, "alice")
}

func TestHistoryRecordsAndFilters(t *testing.T) {
	e := New()
	e.Emit("agent:start", nil, "alice")
	e.Emit("agent:complete", nil, "alice")
	e.Emit("agent:start", nil, "bob")

	if len(e.GetEvents()) != 3 {
		t.Fatalf("expected 3 events in history, got %d", len(e.GetEvents()))
	}
	if len(e.GetEventsByType("agent:start")) != 2 {
		t.Errorf("expected 2 agent:start events, got %d", len(e.GetEventsByType("agent:start")))
	}
	if len(e.GetEventsByAgent("bob")) != 1 {
		t.Errorf("expected 1 event for bob, got %d", len(e.GetEventsByAgent("bob")))
	}

	e.ClearEvents()
	if len(e.GetEvents()) != 0 {
		t.Error("expected history empty after ClearEvents")
	}
}

func TestHistoryRingBufferBounded(t *testing.T) {
	e := NewWithHistorySize(3)
	for i := 0; i < 5; i++ {
		e.Emit("tick", i, "")
	}
	history := e.GetEvents()
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	if history[0].Data != 2 || history[2].Data != 4 {
		t.Errorf("expected oldest-evicted window [2,3,4], got %v, %v, %v", history[0].Data, history[1].Data, history[2].Data)
	}
}

func TestHistoryDisabledWhenZeroSize(t *testing.T) {
	e := NewWithHistorySize(0)
	e.Emit("tick", nil, "")
	if len(e.GetEvents()) != 0 {
		t.Error("expected no retained history when size is 0")
	}
}

func TestEmitIsConcurrencySafe(t *testing.T) {
	e := New()
	var count int32
	e.On("tick", func(Event) { atomic.AddInt32(&count, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit("tick", nil, "")
		}()
	}
	wg.Wait()

	if count != 100 {
		t.Errorf("expected 100 deliveries, got %d", count)
	}
}
