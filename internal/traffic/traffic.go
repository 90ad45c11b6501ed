// Package traffic keeps sliding windows of handled forecast requests, their
// per-location lookup outcomes, and inbound rate-limit denials. The health handler reads it to decide overloaded/degraded.
package traffic

import (
	"sync"
	"time"
)

// Outcome is the kind of event recorded.
type Outcome uint8

const (
	Success Outcome = iota // upstream forecast lookup succeeded
	Failure                // upstream forecast lookup failed (error, timeout, circuit open)
	Denied                 // inbound request rejected by the rate limiter (429)
	Request                // inbound forecast request admitted past the limiter
)

// retention bounds memory; no caller asks about windows longer than this.
const retention = 5 * time.Minute

var defaultTracker = NewTracker()

// RecordSuccess records a successful forecast lookup.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed forecast lookup.
func RecordError() { defaultTracker.Record(Failure) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied) }

// RecordRequest records one admitted forecast request, however many lookups it fans out to.
func RecordRequest() { defaultTracker.Record(Request) }

// RequestCount returns admitted plus denied requests within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.Count(window, Denied) }

// ErrorRate returns (failures, successes+failures) within the window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the process-wide tracker. For tests only.
func Reset() { defaultTracker.Reset() }

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker is a time-ordered event log pruned to the retention period.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record appends an outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within the window.
func (t *Tracker) Count(window time.Duration, o Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindowLocked(window, func(e event) {
		if e.outcome == o {
			n++
		}
	})
	return n
}

// RequestCount returns the number of inbound requests (admitted or denied) within
// the window. Lookup outcomes are per location and do not count.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindowLocked(window, func(e event) {
		if e.outcome == Request || e.outcome == Denied {
			n++
		}
	})
	return n
}

// ErrorRate returns (failures, total) within the window; denials are excluded from both.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eachInWindowLocked(window, func(e event) {
		switch e.outcome {
		case Failure:
			errors++
			total++
		case Success:
			total++
		}
	})
	return errors, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// eachInWindowLocked walks events from newest to oldest, stopping at the window edge.
// Must be called with mutex held.
func (t *Tracker) eachInWindowLocked(window time.Duration, fn func(event)) {
	cutoff := t.now().Add(-window)
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].at.Before(cutoff) {
			return
		}
		fn(t.events[i])
	}
}

// pruneLocked drops events older than retention. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
