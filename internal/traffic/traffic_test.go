package traffic

import (
	"testing"
	"time"
)

// newClockedTracker returns a Tracker whose clock is controlled through the returned pointer.
func newClockedTracker() (*Tracker, *time.Time) {
	tr := NewTracker()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

// TestRequestCount_Empty verifies that RequestCount returns 0 when nothing was recorded.
func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordDenied_AndCounts verifies that RecordDenied increments both
// DenialCount and RequestCount.
func TestRecordDenied_AndCounts(t *testing.T) {
	Reset()
	RecordDenied()
	RecordDenied()
	if n := DenialCount(1 * time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := RequestCount(1 * time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
}

// TestErrorRate_SuccessAndError verifies the error rate counts failures over lookups.
func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

// TestErrorRate_DeniedExcluded verifies denials do not affect the error rate.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordDenied()
	RecordDenied()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errors, total)
	}
}

// TestTracker_WindowEdge verifies events older than the window are not counted.
func TestTracker_WindowEdge(t *testing.T) {
	tr, now := newClockedTracker()
	tr.Record(Failure)
	*now = now.Add(45 * time.Second)
	tr.Record(Success)

	errors, total := tr.ErrorRate(30 * time.Second)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate(30s) = (%d, %d), want (0, 1)", errors, total)
	}
	errors, total = tr.ErrorRate(time.Minute)
	if errors != 1 || total != 2 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (1, 2)", errors, total)
	}
}

// TestTracker_PrunesBeyondRetention verifies old events are dropped on the next record.
func TestTracker_PrunesBeyondRetention(t *testing.T) {
	tr, now := newClockedTracker()
	tr.Record(Request)
	tr.Record(Denied)
	*now = now.Add(retention + time.Second)
	tr.Record(Request)

	if got := len(tr.events); got != 1 {
		t.Errorf("len(events) = %d, want 1 after prune", got)
	}
	if n := tr.RequestCount(24 * time.Hour); n != 1 {
		t.Errorf("RequestCount() = %d, want 1", n)
	}
}

// TestRequestCount_IgnoresLookupOutcomes verifies one request fanning out to many
// lookups counts once toward the request rate.
func TestRequestCount_IgnoresLookupOutcomes(t *testing.T) {
	Reset()
	defer Reset()
	RecordRequest()
	for i := 0; i < 5; i++ {
		RecordSuccess()
	}
	RecordError()
	RecordDenied()
	if n := RequestCount(time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2 (one admitted, one denied)", n)
	}
	errors, total := ErrorRate(time.Minute)
	if errors != 1 || total != 6 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 6)", errors, total)
	}
}

// TestReset verifies that Reset clears all recorded outcomes.
func TestReset(t *testing.T) {
	Reset()
	RecordRequest()
	RecordSuccess()
	RecordError()
	RecordDenied()
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errors, total)
	}
}
