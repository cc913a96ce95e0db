// Package sync provides the engine that drains the sync queue against the
// remote data backend.
package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clearpath-app/backend/internal/db"
	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/logging"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/telemetry"
)

// State is the engine's sync-pass state.
type State int

const (
	// StateIdle means no pass is running.
	StateIdle State = iota
	// StateRunning means a pass holds the single-flight guard.
	StateRunning
	// StateAborting means a running pass noticed an abort condition and is
	// winding down.
	StateAborting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	}
	return "unknown"
}

// ProgressFunc reports pass progress as (totalItems, completedItems). It is
// invoked once before the first batch and again after each batch.
type ProgressFunc func(total, completed int)

// interBatchPause is inserted between batches on a low-quality link to
// avoid saturating a constrained connection.
const interBatchPause = 500 * time.Millisecond

// Engine drains the sync queue. At most one pass runs at a time; a second
// trigger while a pass is running declines rather than waiting.
type Engine struct {
	store  db.QueueStore
	remote RemoteStore
	caps   CapabilityProvider
	online func() bool

	mu    sync.Mutex
	state State
	gen   int // pass generation; stale passes must not touch the guard
}

// NewEngine creates an Engine. online reports current connectivity; caps
// may be nil, in which case default batch sizing applies.
func NewEngine(store db.QueueStore, remote RemoteStore, caps CapabilityProvider, online func() bool) *Engine {
	if caps == nil {
		caps = DefaultCapabilities{}
	}
	if online == nil {
		online = func() bool { return true }
	}
	return &Engine{
		store:  store,
		remote: remote,
		caps:   caps,
		online: online,
		state:  StateIdle,
	}
}

// State returns the current pass state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Interrupt clears the single-flight guard. Called on transition to
// offline so a stalled pass cannot permanently block future syncs; the
// stalled pass notices at its next batch boundary and winds down without
// touching the guard again.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		e.state = StateIdle
	}
}

// TriggerAsync starts a pass in the background. Failures are logged, not
// surfaced; used by connectivity transitions and the background scheduler.
func (e *Engine) TriggerAsync() {
	go func() {
		if _, err := e.Sync(context.Background(), nil); err != nil {
			logging.Error("Background sync pass failed", err)
		}
	}()
}

// acquire takes the single-flight guard. Returns the pass generation and
// whether the guard was taken.
func (e *Engine) acquire() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return 0, false
	}
	e.gen++
	e.state = StateRunning
	return e.gen, true
}

// owns reports whether the pass with generation gen still holds the guard.
func (e *Engine) owns(gen int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != StateIdle && e.gen == gen
}

// release returns the guard to Idle if the pass still owns it.
func (e *Engine) release(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen && e.state != StateIdle {
		e.state = StateIdle
	}
}

// beginAbort marks the pass as winding down if it still owns the guard.
func (e *Engine) beginAbort(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen && e.state == StateRunning {
		e.state = StateAborting
	}
}

// Sync runs one pass over the queue. Returns true when the pass completed
// (or there was nothing to do) and false when it declined to start, was
// already running, or aborted because the system went offline. Per-entry
// failures never surface here; only a store-unavailable condition does.
func (e *Engine) Sync(ctx context.Context, progress ProgressFunc) (bool, error) {
	gen, ok := e.acquire()
	if !ok {
		logging.Debug("Sync pass declined, another pass is running")
		return false, nil
	}
	defer e.release(gen)

	// Queue-only mode: nothing to push against until a backend is wired.
	if e.remote == nil {
		logging.Debug("Sync pass skipped, no remote backend configured")
		return false, nil
	}

	// Authoritative snapshot, oldest mutation first.
	pending, err := e.store.ListPendingQueue()
	if err != nil {
		return false, err
	}
	if len(pending) == 0 {
		return true, nil
	}

	plan := planBatches(e.caps)
	total := len(pending)
	completed := 0

	telemetry.SyncPassStarted()
	logging.Info("Sync pass started", map[string]interface{}{
		"pending":    total,
		"batch_size": plan.size,
	})

	if progress != nil {
		progress(total, completed)
	}

	for start := 0; start < total; start += plan.size {
		// Abort the whole pass at the batch boundary if connectivity went
		// away or the guard was cleared out from under us.
		if ctx.Err() != nil || !e.online() || !e.owns(gen) {
			e.beginAbort(gen)
			telemetry.SyncPassFinished(false)
			logging.Info("Sync pass aborted", map[string]interface{}{
				"completed": completed,
				"remaining": total - completed,
			})
			return false, nil
		}

		end := start + plan.size
		if end > total {
			end = total
		}
		batch := pending[start:end]

		var wg sync.WaitGroup
		for _, entry := range batch {
			wg.Add(1)
			go func(entry *models.SyncQueueEntry) {
				defer wg.Done()
				e.syncEntry(ctx, entry)
			}(entry)
		}
		wg.Wait()

		completed += len(batch)
		if progress != nil {
			progress(total, completed)
		}

		if plan.lowQuality && end < total {
			select {
			case <-time.After(interBatchPause):
			case <-ctx.Done():
			}
		}
	}

	// Reload the snapshot so residual entries (failed this pass) are
	// visible to the background scheduler for a future pass.
	if remaining, err := e.store.ListPendingQueue(); err == nil && len(remaining) > 0 {
		logging.Info("Sync pass left entries pending", map[string]interface{}{
			"remaining": len(remaining),
		})
	}

	telemetry.SyncPassFinished(true)
	logging.Info("Sync pass completed", map[string]interface{}{
		"processed": completed,
	})
	return true, nil
}

// syncEntry pushes one queue entry. Failures are recorded on the entry and
// never propagate; the retry cap converts the 5th failure into a permanent
// give-up.
func (e *Engine) syncEntry(ctx context.Context, entry *models.SyncQueueEntry) {
	var err error
	var serverID string

	switch entry.Operation {
	case models.OperationCreate:
		serverID, err = e.remote.Insert(ctx, entry.StoreName, entry.Payload)
	case models.OperationUpdate:
		id := payloadServerID(entry.Payload)
		if id == "" {
			err = apperrors.Newf(apperrors.ErrInvalid,
				"update entry %s has no backend id", entry.ID)
		} else {
			err = e.remote.Update(ctx, entry.StoreName, id, entry.Payload)
		}
	case models.OperationDelete:
		id := payloadServerID(entry.Payload)
		if id == "" {
			err = apperrors.Newf(apperrors.ErrInvalid,
				"delete entry %s has no backend id", entry.ID)
		} else {
			err = e.remote.Delete(ctx, entry.StoreName, id)
		}
	default:
		err = apperrors.Newf(apperrors.ErrInvalid,
			"unknown operation %q on entry %s", entry.Operation, entry.ID)
	}

	if err != nil {
		e.recordFailure(entry, err)
		return
	}

	telemetry.EntrySynced()
	if markErr := e.store.MarkQueueSynced(string(entry.ID)); markErr != nil {
		logging.Error("Failed to mark queue entry synced", markErr,
			map[string]interface{}{"entry_id": string(entry.ID)})
	}

	switch entry.Operation {
	case models.OperationDelete:
		// Delete acknowledged: purge the payload row, never retain it.
		if delErr := e.store.DeleteRecord(entry.StoreName, string(entry.LocalID)); delErr != nil {
			if !apperrors.Is(delErr, apperrors.ErrRecordNotFound) {
				logging.Error("Failed to purge deleted record", delErr,
					map[string]interface{}{"store": entry.StoreName, "local_id": string(entry.LocalID)})
			}
		}
	default:
		if markErr := e.store.MarkRecordSynced(entry.StoreName, string(entry.LocalID), serverID); markErr != nil {
			// The record may have been deleted locally since enqueue.
			if !apperrors.Is(markErr, apperrors.ErrRecordNotFound) {
				logging.Error("Failed to mark record synced", markErr,
					map[string]interface{}{"store": entry.StoreName, "local_id": string(entry.LocalID)})
			}
		}
	}
}

// recordFailure bumps the attempt counter and logs a warning when the
// entry crosses the retry cap.
func (e *Engine) recordFailure(entry *models.SyncQueueEntry, cause error) {
	attempts, gaveUp, err := e.store.RecordQueueFailure(string(entry.ID))
	if err != nil {
		logging.Error("Failed to record sync failure", err,
			map[string]interface{}{"entry_id": string(entry.ID)})
		return
	}

	telemetry.EntryFailed()
	if gaveUp {
		telemetry.EntryGivenUp()
		logging.ErrorWithCode("Abandoning queue entry after repeated failures",
			string(apperrors.ErrSyncGaveUp), cause, map[string]interface{}{
				"entry_id": string(entry.ID),
				"store":    entry.StoreName,
				"attempts": attempts,
			})
		return
	}

	logging.Warn("Sync attempt failed, will retry", map[string]interface{}{
		"entry_id": string(entry.ID),
		"store":    entry.StoreName,
		"attempts": attempts,
		"error":    cause.Error(),
	})
}

// payloadServerID extracts the backend-assigned id from a payload snapshot.
func payloadServerID(payload json.RawMessage) string {
	var record struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &record); err != nil {
		return ""
	}
	return record.ID
}
