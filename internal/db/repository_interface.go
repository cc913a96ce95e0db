// Package db provides repository interfaces for ClearPath data models.
package db

import (
	"time"

	"github.com/clearpath-app/backend/internal/models"
)

// QueueStore defines the storage operations the sync engine drains the
// queue through. Extracted as an interface so engine tests can substitute
// an instrumented store.
type QueueStore interface {
	// ListPendingQueue returns entries awaiting sync, oldest first.
	ListPendingQueue() ([]*models.SyncQueueEntry, error)

	// ListQueue returns every queue entry, oldest first.
	ListQueue() ([]*models.SyncQueueEntry, error)

	// MarkQueueSynced marks a queue entry as acknowledged.
	MarkQueueSynced(id string) error

	// RecordQueueFailure increments the attempt counter and reports
	// (attempts, gaveUp).
	RecordQueueFailure(id string) (int, bool, error)

	// MarkRecordSynced flips a payload record to synced, adopting a
	// backend-assigned server ID if one is supplied.
	MarkRecordSynced(store, localID, serverID string) error

	// DeleteRecord physically removes a payload record.
	DeleteRecord(store, localID string) error
}

// MaintenanceStore defines the housekeeping operations exposed to the
// hosting application.
type MaintenanceStore interface {
	// QueueStatus summarizes the queue.
	QueueStatus() (models.SyncStatus, error)

	// HasPendingQueue reports whether any entry still awaits sync.
	HasPendingQueue() (bool, error)

	// CleanupQueue removes synced entries older than the cutoff.
	CleanupQueue(cutoff time.Time) (int, error)

	// DeleteUserData removes one user's records and queue entries.
	DeleteUserData(userID string) error

	// ClearAll wipes every store.
	ClearAll() error

	// StoreStats reports per-store record counts and estimated sizes.
	StoreStats() (map[string]models.StoreStats, error)
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ QueueStore       = (*Repository)(nil)
	_ MaintenanceStore = (*Repository)(nil)
)
