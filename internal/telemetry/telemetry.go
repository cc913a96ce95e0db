// Package telemetry collects in-process counters for the sync daemon.
// All data stays on the local machine: counters live in memory, are
// exposed only through the local HTTP API, and are never transmitted
// to any external service.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// =====================================================
// Counters
// =====================================================

var (
	syncPassesStarted   atomic.Int64
	syncPassesCompleted atomic.Int64
	syncPassesAborted   atomic.Int64
	entriesSynced       atomic.Int64
	entriesFailed       atomic.Int64
	entriesGivenUp      atomic.Int64
	networkTransitions  atomic.Int64

	timingMu      sync.Mutex
	lastPassStart time.Time
	lastPassTook  time.Duration
)

// SyncPassStarted records the start of a sync pass.
func SyncPassStarted() {
	syncPassesStarted.Add(1)
	timingMu.Lock()
	lastPassStart = time.Now()
	timingMu.Unlock()
}

// SyncPassFinished records the end of a sync pass. A pass that drained
// the whole queue counts as completed, anything else as aborted.
func SyncPassFinished(completed bool) {
	if completed {
		syncPassesCompleted.Add(1)
	} else {
		syncPassesAborted.Add(1)
	}
	timingMu.Lock()
	if !lastPassStart.IsZero() {
		lastPassTook = time.Since(lastPassStart)
	}
	timingMu.Unlock()
}

// EntrySynced records a queue entry acknowledged by the backend.
func EntrySynced() {
	entriesSynced.Add(1)
}

// EntryFailed records a failed push attempt for a queue entry.
func EntryFailed() {
	entriesFailed.Add(1)
}

// EntryGivenUp records an entry abandoned after exhausting its retries.
func EntryGivenUp() {
	entriesGivenUp.Add(1)
}

// NetworkTransition records an online/offline flip.
func NetworkTransition() {
	networkTransitions.Add(1)
}

// =====================================================
// Snapshot
// =====================================================

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	SyncPassesStarted   int64 `json:"sync_passes_started"`
	SyncPassesCompleted int64 `json:"sync_passes_completed"`
	SyncPassesAborted   int64 `json:"sync_passes_aborted"`
	EntriesSynced       int64 `json:"entries_synced"`
	EntriesFailed       int64 `json:"entries_failed"`
	EntriesGivenUp      int64 `json:"entries_given_up"`
	NetworkTransitions  int64 `json:"network_transitions"`
	LastPassDurationMs  int64 `json:"last_pass_duration_ms"`
}

// Collect returns a snapshot of the current counter values.
func Collect() Snapshot {
	timingMu.Lock()
	took := lastPassTook
	timingMu.Unlock()

	return Snapshot{
		SyncPassesStarted:   syncPassesStarted.Load(),
		SyncPassesCompleted: syncPassesCompleted.Load(),
		SyncPassesAborted:   syncPassesAborted.Load(),
		EntriesSynced:       entriesSynced.Load(),
		EntriesFailed:       entriesFailed.Load(),
		EntriesGivenUp:      entriesGivenUp.Load(),
		NetworkTransitions:  networkTransitions.Load(),
		LastPassDurationMs:  took.Milliseconds(),
	}
}

// Reset zeroes every counter. Intended for tests.
func Reset() {
	syncPassesStarted.Store(0)
	syncPassesCompleted.Store(0)
	syncPassesAborted.Store(0)
	entriesSynced.Store(0)
	entriesFailed.Store(0)
	entriesGivenUp.Store(0)
	networkTransitions.Store(0)
	timingMu.Lock()
	lastPassStart = time.Time{}
	lastPassTook = 0
	timingMu.Unlock()
}
