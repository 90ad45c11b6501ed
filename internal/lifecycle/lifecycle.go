// Package lifecycle holds process-wide readiness and shutdown state.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

var (
	shuttingDown atomic.Bool

	readyOnce sync.Once
	ready     = make(chan struct{})
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkReady releases the readiness latch. Call once storage is initialized and
// migrations have run; later calls are no-ops.
func MarkReady() {
	readyOnce.Do(func() { close(ready) })
}

// IsReady reports whether MarkReady has been called.
func IsReady() bool {
	select {
	case <-ready:
		return true
	default:
		return false
	}
}
