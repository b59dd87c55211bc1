package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestNewDefaultsThresholds(t *testing.T) {
	b := New(Config{})
	if b.cfg.Threshold != 1 || b.cfg.SuccessThreshold != 1 {
		t.Fatalf("expected thresholds defaulted to 1, got %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("expected new breaker closed, got %s", b.State())
	}
}

func TestOpensAfterThresholdFailures(t *testing.T) {
	b := New(Config{Threshold: 3, ResetTimeout: time.Hour})

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("expected still closed after 2 failures, got %s", b.State())
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if b.CanExecute() {
		t.Error("open breaker should not allow execution")
	}
}

func TestSuccessResetsFailureCountInClosed(t *testing.T) {
	b := New(Config{Threshold: 2, ResetTimeout: time.Hour})

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("expected closed, failure counter should have reset on success, got %s", b.State())
	}
}

func TestTransitionsToHalfOpenAfterResetTimeout(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond})
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatal("expected half-open probe to be allowed after reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, SuccessThreshold: 2})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.CanExecute()

	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("expected still half-open after 1 of 2 successes, got %s", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", b.State())
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.CanExecute()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected reopen on half-open failure, got %s", b.State())
	}
}

func TestResetRestoresClosed(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Hour})
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after Reset, got %s", b.State())
	}
	if !b.CanExecute() {
		t.Error("expected execution allowed after Reset")
	}
}

func TestOnStateChangeNotifiesListeners(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Hour})
	var mu sync.Mutex
	var gotFrom, gotTo State
	done := make(chan struct{})
	b.OnStateChange(func(from, to State) {
		mu.Lock()
		gotFrom, gotTo = from, to
		mu.Unlock()
		close(done)
	})

	b.RecordFailure()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change listener")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotFrom != StateClosed || gotTo != StateOpen {
		t.Errorf("expected closed->open, got %s->%s", gotFrom, gotTo)
	}
}
