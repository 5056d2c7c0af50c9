package llm

import (
	"testing"
	"time"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %v", cb.State())
	}
	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Errorf("expected closed breaker to allow, got allowed=%v err=%v", allowed, err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed before threshold, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after threshold, got %v", cb.State())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Error("expected open breaker to block")
	}
	if err == nil {
		t.Error("expected error from open breaker")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected failure count reset, got %d", cb.ConsecutiveFailures())
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Fatalf("expected probe allowed after reset window, got allowed=%v err=%v", allowed, err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}

	// Second caller is blocked while the probe is in flight.
	allowed, err = cb.Allow()
	if allowed || err == nil {
		t.Errorf("expected half-open breaker to block second request")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if allowed, _ := cb.Allow(); !allowed {
		t.Fatal("expected probe allowed")
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Errorf("expected reopened circuit after failed probe, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if allowed, _ := cb.Allow(); !allowed {
		t.Fatal("expected probe allowed")
	}
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed circuit after successful probe, got %v", cb.State())
	}
}
