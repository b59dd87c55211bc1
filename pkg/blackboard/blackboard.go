// Package blackboard implements the versioned, keyed shared-memory area
// available to all agents and strategies within one swarm run.
package blackboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// ErrNotFound is returned by Read/GetSection when the named section has
// never been written.
var ErrNotFound = errors.New("blackboard: section not found")

// System is the modifiedBy value used for writes not attributed to an agent.
const System = "system"

// Section is one named slot of shared memory.
type Section struct {
	Name         string
	Data         interface{}
	Version      int
	LastModified time.Time
	ModifiedBy   string
}

// HistoryEntry is one past write to a section, retained only if history is
// enabled for the Blackboard.
type HistoryEntry struct {
	Value      interface{}
	WrittenBy  string
	Timestamp  time.Time
	Version    int
}

// Subscriber is notified synchronously after a write to the section it
// subscribed to commits. Handler failures are isolated from the writer.
type Subscriber func(Section)

// Blackboard is a concurrency-safe versioned keyed store with optional
// per-section history and change subscriptions.
type Blackboard struct {
	mu            sync.Mutex
	sections      map[string]*Section
	history       map[string][]HistoryEntry
	subscribers   map[string][]Subscriber
	historyEnabled bool
}

// New creates a Blackboard. When history is true, every write appends a
// HistoryEntry retrievable with GetHistory.
func New(history bool) *Blackboard {
	return &Blackboard{
		sections:       make(map[string]*Section),
		history:        make(map[string][]HistoryEntry),
		subscribers:    make(map[string][]Subscriber),
		historyEnabled: history,
	}
}

// Read returns the committed value of section, or ErrNotFound.
func (b *Blackboard) Read(section string) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sections[section]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, section)
	}
	return s.Data, nil
}

// Write commits data to section, allocating it on first write, always
// incrementing its version and updating metadata. Subscribers are notified
// synchronously after the commit, isolated from each other's panics.
func (b *Blackboard) Write(section string, data interface{}, agentName string) Section {
	b.mu.Lock()
	committed, subs := b.commitLocked(section, data, agentName)
	b.mu.Unlock()

	notify(subs, committed)
	return committed
}

// WriteIfVersion commits data to section only if its current version
// equals expectedVersion (0 for a section that has never been written),
// returning swarmerr.ErrStaleWrite if another writer has since advanced
// it. Callers that need to merge concurrent updates (e.g. several
// parallel agent runs contributing to one shared section) should re-read
// the section and retry on a stale write rather than overwrite blindly.
func (b *Blackboard) WriteIfVersion(section string, expectedVersion int, data interface{}, agentName string) (Section, error) {
	b.mu.Lock()
	s, ok := b.sections[section]
	current := 0
	if ok {
		current = s.Version
	}
	if current != expectedVersion {
		b.mu.Unlock()
		return Section{}, fmt.Errorf("%w: %s is at version %d, expected %d", swarmerr.ErrStaleWrite, section, current, expectedVersion)
	}

	committed, subs := b.commitLocked(section, data, agentName)
	b.mu.Unlock()

	notify(subs, committed)
	return committed, nil
}

// commitLocked performs the write under b.mu and returns the committed
// section plus the subscriber list to notify once unlocked.
func (b *Blackboard) commitLocked(section string, data interface{}, agentName string) (Section, []Subscriber) {
	s, ok := b.sections[section]
	if !ok {
		s = &Section{Name: section}
		b.sections[section] = s
	}
	s.Data = data
	s.Version++
	s.LastModified = time.Now()
	s.ModifiedBy = agentName

	if b.historyEnabled {
		b.history[section] = append(b.history[section], HistoryEntry{
			Value:     data,
			WrittenBy: agentName,
			Timestamp: s.LastModified,
			Version:   s.Version,
		})
	}

	committed := *s
	subs := append([]Subscriber(nil), b.subscribers[section]...)
	return committed, subs
}

// Append treats section as an ordered list: if absent, creates it as a
// one-element list; otherwise requires the existing value already be a
// []interface{} and writes a new slice with item appended. The previous
// slice is never mutated in place, since subscribers may still hold it.
func (b *Blackboard) Append(section string, item interface{}, agentName string) (Section, error) {
	b.mu.Lock()
	s, ok := b.sections[section]
	var existing []interface{}
	if ok {
		list, isList := s.Data.([]interface{})
		if !isList {
			b.mu.Unlock()
			return Section{}, fmt.Errorf("blackboard: section %q is not an ordered list", section)
		}
		existing = list
	}
	b.mu.Unlock()

	next := make([]interface{}, len(existing)+1)
	copy(next, existing)
	next[len(existing)] = item

	return b.Write(section, next, agentName), nil
}

// Has reports whether section has ever been written.
func (b *Blackboard) Has(section string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sections[section]
	return ok
}

// Delete removes section along with its history and subscriptions.
func (b *Blackboard) Delete(section string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sections, section)
	delete(b.history, section)
	delete(b.subscribers, section)
}

// GetSections returns the names of every section ever written.
func (b *Blackboard) GetSections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.sections))
	for name := range b.sections {
		names = append(names, name)
	}
	return names
}

// GetSection returns the full Section record, or ErrNotFound.
func (b *Blackboard) GetSection(section string) (Section, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sections[section]
	if !ok {
		return Section{}, fmt.Errorf("%w: %s", ErrNotFound, section)
	}
	return *s, nil
}

// GetHistory returns the retained write history for section, oldest first.
// Empty if history was not enabled or the section has no writes.
func (b *Blackboard) GetHistory(section string) []HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]HistoryEntry(nil), b.history[section]...)
}

// Subscribe registers handler to be invoked on every future write to
// section.
func (b *Blackboard) Subscribe(section string, handler Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[section] = append(b.subscribers[section], handler)
}

// Clear drops every section, history entry, and subscription.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sections = make(map[string]*Section)
	b.history = make(map[string][]HistoryEntry)
	b.subscribers = make(map[string][]Subscriber)
}

func notify(subs []Subscriber, s Section) {
	for _, sub := range subs {
		invoke(sub, s)
	}
}

func invoke(sub Subscriber, s Section) {
	defer func() {
		recover() //nolint:errcheck // subscriber failures must never affect the writer
	}()
	sub(s)
}
