// Package sync provides the sync engine interface for dependency injection.
package sync

import "context"

// SyncEngine is the engine surface consumed by the scheduler and the
// daemon handlers. Extracted as an interface so they can be tested with an
// instrumented engine.
type SyncEngine interface {
	// Sync runs one pass over the queue.
	Sync(ctx context.Context, progress ProgressFunc) (bool, error)

	// TriggerAsync starts a fire-and-forget pass.
	TriggerAsync()

	// Interrupt clears the single-flight guard.
	Interrupt()

	// State returns the current pass state.
	State() State
}

// Ensure *Engine implements the interface at compile time.
var _ SyncEngine = (*Engine)(nil)

// Ensure *Engine satisfies what the connectivity monitor needs.
var _ Syncer = (*Engine)(nil)
