// Package events implements the typed event emitter shared by the
// coordinator and all strategies: named-event fan-out, a "*" wildcard
// registry, and a bounded ring-buffer history.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkym/agentpipe/pkg/log"
)

// Event is a single structured, timestamped notification.
type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	AgentName string
	Data      interface{}
}

// Handler receives emitted events. Handlers must never panic the caller;
// panics are recovered and logged by the emitter.
type Handler func(Event)

const defaultHistorySize = 1000

// Emitter is a concurrency-safe, in-process event bus with wildcard
// subscription and bounded history.
type Emitter struct {
	mu          sync.Mutex
	handlers    map[string][]subscription
	wildcard    []subscription
	nextSubID   uint64
	history     []Event
	historyCap  int
}

type subscription struct {
	id      uint64
	handler Handler
	once    bool
}

// New creates an Emitter with the default 1,000-event history ring.
func New() *Emitter {
	return NewWithHistorySize(defaultHistorySize)
}

// NewWithHistorySize creates an Emitter with a custom history ring size.
// A size of 0 disables history retention.
func NewWithHistorySize(size int) *Emitter {
	return &Emitter{
		handlers:   make(map[string][]subscription),
		historyCap: size,
	}
}

// On subscribes handler to events of the given type, or to every event if
// type is "*". Returns an unsubscribe function. Handlers for a specific
// type run before wildcard handlers, both in registration order.
func (e *Emitter) On(eventType string, handler Handler) func() {
	return e.subscribe(eventType, handler, false)
}

// Once subscribes handler to the next occurrence of eventType only.
func (e *Emitter) Once(eventType string, handler Handler) func() {
	return e.subscribe(eventType, handler, true)
}

func (e *Emitter) subscribe(eventType string, handler Handler, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	sub := subscription{id: id, handler: handler, once: once}

	if eventType == "*" {
		e.wildcard = append(e.wildcard, sub)
	} else {
		e.handlers[eventType] = append(e.handlers[eventType], sub)
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if eventType == "*" {
			e.wildcard = removeSub(e.wildcard, id)
		} else {
			e.handlers[eventType] = removeSub(e.handlers[eventType], id)
		}
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Off removes every typed subscription for the given event type; wildcard
// subscriptions are left in place. Pass "*" to clear only the wildcard
// registry.
func (e *Emitter) Off(eventType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if eventType == "*" {
		e.wildcard = nil
		return
	}
	delete(e.handlers, eventType)
}

// RemoveAllListeners clears every typed and wildcard subscription.
func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[string][]subscription)
	e.wildcard = nil
}

// Emit fires eventType with data, appends it to history, and invokes
// matching handlers synchronously in (typed, then wildcard) registration
// order. Handler panics are recovered and logged, never propagated.
func (e *Emitter) Emit(eventType string, data interface{}, agentName string) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		AgentName: agentName,
		Data:      data,
	}

	e.mu.Lock()
	e.recordHistory(ev)
	typed := append([]subscription(nil), e.handlers[eventType]...)
	wildcard := append([]subscription(nil), e.wildcard...)
	e.mu.Unlock()

	e.dispatch(eventType, typed, ev, false)
	e.dispatch(eventType, wildcard, ev, true)
}

func (e *Emitter) dispatch(eventType string, subs []subscription, ev Event, wildcard bool) {
	var onceIDs []uint64
	for _, sub := range subs {
		e.invoke(sub.handler, ev)
		if sub.once {
			onceIDs = append(onceIDs, sub.id)
		}
	}
	if len(onceIDs) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range onceIDs {
		if wildcard {
			e.wildcard = removeSub(e.wildcard, id)
		} else {
			e.handlers[eventType] = removeSub(e.handlers[eventType], id)
		}
	}
}

func (e *Emitter) invoke(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("event_type", ev.Type).WithField("panic", r).Error("event handler panicked")
		}
	}()
	handler(ev)
}

func (e *Emitter) recordHistory(ev Event) {
	if e.historyCap <= 0 {
		return
	}
	e.history = append(e.history, ev)
	if len(e.history) > e.historyCap {
		e.history = e.history[len(e.history)-e.historyCap:]
	}
}

// GetEvents returns a copy of the full retained history, oldest first.
func (e *Emitter) GetEvents() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.history...)
}

// GetEventsByType filters retained history by event type.
func (e *Emitter) GetEventsByType(eventType string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.history {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// GetEventsByAgent filters retained history by agent name.
func (e *Emitter) GetEventsByAgent(agentName string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.history {
		if ev.AgentName == agentName {
			out = append(out, ev)
		}
	}
	return out
}

// ClearEvents drops all retained history without affecting subscriptions.
func (e *Emitter) ClearEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
