package blackboard

import (
	"errors"
	"testing"

	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

func TestReadUnknownSectionReturnsErrNotFound(t *testing.T) {
	b := New(false)
	if _, err := b.Read("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	b := New(false)
	b.Write("plan", "do the thing", "alice")

	got, err := b.Read("plan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "do the thing" {
		t.Errorf("expected %q, got %q", "do the thing", got)
	}
}

func TestWriteIncrementsVersionAndTracksModifier(t *testing.T) {
	b := New(false)
	s1 := b.Write("plan", "v1", "alice")
	if s1.Version != 1 || s1.ModifiedBy != "alice" {
		t.Fatalf("expected version 1 by alice, got %+v", s1)
	}
	s2 := b.Write("plan", "v2", "bob")
	if s2.Version != 2 || s2.ModifiedBy != "bob" {
		t.Fatalf("expected version 2 by bob, got %+v", s2)
	}
}

func TestWriteIfVersionSucceedsAtExpectedVersion(t *testing.T) {
	b := New(false)
	b.Write("plan", "v1", "alice")

	committed, err := b.WriteIfVersion("plan", 1, "v2", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if committed.Version != 2 || committed.Data != "v2" {
		t.Fatalf("expected version 2 with data v2, got %+v", committed)
	}
}

func TestWriteIfVersionRejectsStaleVersion(t *testing.T) {
	b := New(false)
	b.Write("plan", "v1", "alice")
	b.Write("plan", "v2", "bob")

	_, err := b.WriteIfVersion("plan", 1, "v3-stale", "carol")
	if !errors.Is(err, swarmerr.ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	got, _ := b.Read("plan")
	if got != "v2" {
		t.Errorf("expected the stale write to be rejected, plan is now %q", got)
	}
}

func TestWriteIfVersionAcceptsZeroForUnwrittenSection(t *testing.T) {
	b := New(false)
	committed, err := b.WriteIfVersion("fresh", 0, "first", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if committed.Version != 1 {
		t.Fatalf("expected version 1 for a first write, got %d", committed.Version)
	}
}

func TestAppendBuildsOrderedList(t *testing.T) {
	b := New(false)
	if _, err := b.Append("log", "first", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Append("log", "second", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := b.Read("log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := got.([]interface{})
	if !ok || len(list) != 2 || list[0] != "first" || list[1] != "second" {
		t.Fatalf("expected ordered two-item list, got %+v", got)
	}
}

func TestAppendRejectsNonListSection(t *testing.T) {
	b := New(false)
	b.Write("plan", "not a list", "alice")

	if _, err := b.Append("plan", "item", "bob"); err == nil {
		t.Fatal("expected error appending to a non-list section")
	}
}

func TestHasAndDelete(t *testing.T) {
	b := New(false)
	if b.Has("plan") {
		t.Fatal("expected Has false before any write")
	}
	b.Write("plan", "v1", "alice")
	if !b.Has("plan") {
		t.Fatal("expected Has true after write")
	}
	b.Delete("plan")
	if b.Has("plan") {
		t.Fatal("expected Has false after delete")
	}
}

func TestGetSectionsListsWrittenNames(t *testing.T) {
	b := New(false)
	b.Write("plan", "v1", "alice")
	b.Write("notes", "v1", "bob")

	names := b.GetSections()
	if len(names) != 2 {
		t.Fatalf("expected 2 section names, got %v", names)
	}
}

func TestHistoryDisabledByDefault(t *testing.T) {
	b := New(false)
	b.Write("plan", "v1", "alice")
	b.Write("plan", "v2", "alice")

	if h := b.GetHistory("plan"); len(h) != 0 {
		t.Errorf("expected no retained history, got %v", h)
	}
}

func TestHistoryEnabledRecordsEveryWrite(t *testing.T) {
	b := New(true)
	b.Write("plan", "v1", "alice")
	b.Write("plan", "v2", "bob")

	h := b.GetHistory("plan")
	if len(h) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(h))
	}
	if h[0].Value != "v1" || h[1].Value != "v2" {
		t.Errorf("expected history in write order, got %+v", h)
	}
}

func TestSubscribeNotifiesOnWrite(t *testing.T) {
	b := New(false)
	var got Section
	b.Subscribe("plan", func(s Section) { got = s })

	b.Write("plan", "v1", "alice")

	if got.Name != "plan" || got.Data != "v1" {
		t.Fatalf("expected subscriber to observe committed section, got %+v", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	b := New(false)
	b.Subscribe("plan", func(Section) { panic("boom") })

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected Write to recover subscriber panic, got: %v", r)
		}
	}()
	b.Write("plan", "v1", "alice")
}

func TestClearRemovesEverything(t *testing.T) {
	b := New(true)
	b.Write("plan", "v1", "alice")
	b.Subscribe("plan", func(Section) {})

	b.Clear()

	if b.Has("plan") {
		t.Error("expected no sections after Clear")
	}
	if len(b.GetHistory("plan")) != 0 {
		t.Error("expected no history after Clear")
	}
}
