package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

// newTestBreaker returns a breaker whose clock is controlled by the returned pointer.
func newTestBreaker(cfg Config) (*CircuitBreaker, *time.Time) {
	cb := New(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail() error    { return errUpstream }
func succeed() error { return nil }

// TestCircuitBreaker_OpensAfterThreshold verifies the circuit opens after FailureThreshold
// consecutive failures and then rejects calls without invoking fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: error = %v, want errUpstream", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn invoked while circuit open")
	}
}

// TestCircuitBreaker_SuccessResetsFailures verifies failures must be consecutive.
func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, succeed)
	_ = cb.Call(ctx, fail)
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies open -> half-open after Timeout and
// half-open -> closed after SuccessThreshold successes, with transitions reported.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb, now := newTestBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	*now = now.Add(11 * time.Second)

	if err := cb.Call(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open after one success", cb.State())
	}
	if err := cb.Call(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

// TestCircuitBreaker_HalfOpenFailureReopens verifies a failed probe reopens the circuit.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	*now = now.Add(2 * time.Second)
	_ = cb.Call(ctx, fail)
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}
}

// TestCircuitBreaker_HalfOpenProbeLimit verifies only HalfOpenProbes calls run concurrently
// while half-open; the rest are rejected with ErrOpen.
func TestCircuitBreaker_HalfOpenProbeLimit(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second, HalfOpenProbes: 1})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	*now = now.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(ctx, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Call(ctx, succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe error = %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first probe error = %v", err)
	}
}

// TestCircuitBreaker_CallerCancellationNotCounted verifies caller-side cancellation does
// not count as an upstream failure.
func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())

	err := cb.Call(ctx, func() error {
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}

	if err := cb.Call(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Errorf("call with done ctx error = %v, want context.Canceled", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
