// Package services provides the offline persistence facade exposed to the
// hosting application.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clearpath-app/backend/internal/db"
	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/logging"
	"github.com/clearpath-app/backend/internal/models"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
)

// DefaultCleanupDays is how far back CleanupOldSyncItems reaches when the
// caller passes no age.
const DefaultCleanupDays = 30

// OfflineService is the public surface of the local persistence and sync
// queue component. All state is constructor-injected so independent
// instances can coexist, one per test or per profile.
type OfflineService struct {
	repo   *db.Repository
	engine syncpkg.SyncEngine
	online func() bool
}

// NewOfflineService creates the facade over an opened repository and a
// configured sync engine. online reports current connectivity; nil means
// assume online.
func NewOfflineService(repo *db.Repository, engine syncpkg.SyncEngine, online func() bool) *OfflineService {
	if online == nil {
		online = func() bool { return true }
	}
	return &OfflineService{repo: repo, engine: engine, online: online}
}

// maybeTriggerSync starts a background pass after a fresh enqueue so a
// mutation made while online does not sit waiting for the scheduler. Only
// fires when online and no pass is running.
func (s *OfflineService) maybeTriggerSync() {
	if s.engine == nil {
		return
	}
	if s.online() && s.engine.State() == syncpkg.StateIdle {
		s.engine.TriggerAsync()
	}
}

// =====================================================
// Save Operations
// =====================================================
// Saving assigns a local ID if absent, resets the synced flag, stamps the
// pending operation (update when the record already has a backend ID,
// create otherwise), persists the record, and enqueues a sync entry. A
// record's earlier pending entry is replaced, never stacked.

// prepare stamps the sync metadata ahead of persistence. Returns true when
// the record already existed locally.
func (s *OfflineService) prepare(meta *models.SyncMeta) bool {
	exists := meta.LocalID != ""
	meta.Synced = false
	if meta.ServerID != "" {
		meta.Operation = models.OperationUpdate
	} else {
		meta.Operation = models.OperationCreate
	}
	return exists
}

// enqueue snapshots the record into the sync queue.
func (s *OfflineService) enqueue(record models.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to snapshot record", err)
	}
	meta := record.Meta()
	err = s.repo.EnqueueSync(&models.SyncQueueEntry{
		StoreName: record.TableName(),
		LocalID:   meta.LocalID,
		UserID:    meta.UserID,
		Payload:   payload,
		Operation: meta.Operation,
	})
	if err != nil {
		return err
	}
	s.maybeTriggerSync()
	return nil
}

// SaveProgress stores a progress entry and queues it for sync.
func (s *OfflineService) SaveProgress(e *models.ProgressEntry) (*models.ProgressEntry, error) {
	exists := s.prepare(&e.SyncMeta)

	var err error
	if exists {
		err = s.repo.UpdateProgressEntry(e)
	} else {
		err = s.repo.CreateProgressEntry(e)
	}
	if err != nil {
		logging.Error("Failed to save progress entry", err)
		return nil, err
	}

	if err := s.enqueue(e); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveCraving stores a craving entry and queues it for sync.
func (s *OfflineService) SaveCraving(e *models.CravingEntry) (*models.CravingEntry, error) {
	exists := s.prepare(&e.SyncMeta)

	var err error
	if exists {
		err = s.repo.UpdateCravingEntry(e)
	} else {
		err = s.repo.CreateCravingEntry(e)
	}
	if err != nil {
		logging.Error("Failed to save craving entry", err)
		return nil, err
	}

	if err := s.enqueue(e); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveTask stores a task entry and queues it for sync.
func (s *OfflineService) SaveTask(e *models.TaskEntry) (*models.TaskEntry, error) {
	exists := s.prepare(&e.SyncMeta)

	var err error
	if exists {
		err = s.repo.UpdateTaskEntry(e)
	} else {
		err = s.repo.CreateTaskEntry(e)
	}
	if err != nil {
		logging.Error("Failed to save task entry", err)
		return nil, err
	}

	if err := s.enqueue(e); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveConsumption stores a consumption log and queues it for sync.
func (s *OfflineService) SaveConsumption(e *models.ConsumptionLog) (*models.ConsumptionLog, error) {
	exists := s.prepare(&e.SyncMeta)

	var err error
	if exists {
		err = s.repo.UpdateConsumptionLog(e)
	} else {
		err = s.repo.CreateConsumptionLog(e)
	}
	if err != nil {
		logging.Error("Failed to save consumption log", err)
		return nil, err
	}

	if err := s.enqueue(e); err != nil {
		return nil, err
	}
	return e, nil
}

// =====================================================
// List Operations
// =====================================================

// GetProgress returns a user's progress entries, optionally bounded by a
// day range (YYYY-MM-DD, inclusive; empty strings mean unbounded).
func (s *OfflineService) GetProgress(userID, fromDay, toDay string) ([]*models.ProgressEntry, error) {
	return s.repo.ListProgressEntries(userID, fromDay, toDay)
}

// GetCravings returns a user's craving entries, optionally bounded by an
// occurrence range (unix seconds; zero means unbounded).
func (s *OfflineService) GetCravings(userID string, from, to int64) ([]*models.CravingEntry, error) {
	return s.repo.ListCravingEntries(userID, from, to)
}

// GetTasks returns a user's tasks, optionally bounded by a due-date range.
func (s *OfflineService) GetTasks(userID, fromDay, toDay string) ([]*models.TaskEntry, error) {
	return s.repo.ListTaskEntries(userID, fromDay, toDay)
}

// GetConsumption returns a user's consumption logs, optionally bounded by
// a logged-at range (unix seconds; zero means unbounded).
func (s *OfflineService) GetConsumption(userID string, from, to int64) ([]*models.ConsumptionLog, error) {
	return s.repo.ListConsumptionLogs(userID, from, to)
}

// =====================================================
// Delete Operations
// =====================================================

// Delete removes a record from the named store. A record that already has
// a backend ID is flagged for deferred deletion and queued; the physical
// row survives until the backend confirms. A never-synced record is
// deleted outright along with any queue entry referencing it.
func (s *OfflineService) Delete(store, localID, backendID string) error {
	if backendID != "" {
		userID, err := s.repo.MarkRecordDeleting(store, localID)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{
			"id":       backendID,
			"local_id": localID,
		})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to snapshot delete", err)
		}
		err = s.repo.EnqueueSync(&models.SyncQueueEntry{
			StoreName: store,
			LocalID:   models.UUID(localID),
			UserID:    userID,
			Payload:   payload,
			Operation: models.OperationDelete,
		})
		if err != nil {
			return err
		}
		s.maybeTriggerSync()
		return nil
	}

	if err := s.repo.DeleteRecord(store, localID); err != nil {
		return err
	}
	// Never-synced records leave no queue residue behind.
	return s.repo.DeleteQueueForRecord(localID)
}

// =====================================================
// Sync Operations
// =====================================================

// SyncData runs one sync pass. True means the pass completed or there was
// nothing to do; false means it declined to start or aborted offline.
func (s *OfflineService) SyncData(ctx context.Context, progress syncpkg.ProgressFunc) (bool, error) {
	return s.engine.Sync(ctx, progress)
}

// GetSyncStatus summarizes the queue for the hosting application. This is
// the only way it learns of permanently-abandoned entries; no alert is
// pushed.
func (s *OfflineService) GetSyncStatus() (models.SyncStatus, error) {
	return s.repo.QueueStatus()
}

// HasPendingSyncData reports whether any mutation still awaits sync.
func (s *OfflineService) HasPendingSyncData() (bool, error) {
	return s.repo.HasPendingQueue()
}

// =====================================================
// Maintenance Operations
// =====================================================

// CleanupOldSyncItems removes synced queue entries older than the given
// age in days (DefaultCleanupDays when zero or negative). Returns the
// count removed.
func (s *OfflineService) CleanupOldSyncItems(days int) (int, error) {
	if days <= 0 {
		days = DefaultCleanupDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := s.repo.CleanupQueue(cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Info("Cleaned up old sync queue entries", map[string]interface{}{
			"removed":    removed,
			"older_days": days,
		})
	}
	return removed, nil
}

// ClearUserData wipes one user's records across all stores, used on
// account sign-out. Other users' data is untouched.
func (s *OfflineService) ClearUserData(userID string) error {
	return s.repo.DeleteUserData(userID)
}

// ClearAllData wipes every store unconditionally.
func (s *OfflineService) ClearAllData() error {
	return s.repo.ClearAll()
}

// GetStorageStats reports per-store record counts and estimated sizes.
func (s *OfflineService) GetStorageStats() (map[string]models.StoreStats, error) {
	return s.repo.StoreStats()
}
