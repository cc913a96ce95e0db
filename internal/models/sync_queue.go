// Package models provides data model definitions for the ClearPath offline backend.
package models

import (
	"encoding/json"
	"time"
)

// MaxSyncAttempts is the retry cap for a queue entry. After the 5th failed
// attempt the entry is abandoned: Synced is forced true so it leaves the
// pending set, and GaveUp records that it never actually succeeded.
const MaxSyncAttempts = 5

// SyncQueueEntry is a pending mutation waiting to be pushed to the remote
// backend. Payload is a snapshot of the record at enqueue time.
type SyncQueueEntry struct {
	ID        UUID            `db:"id" json:"id"`
	StoreName string          `db:"store_name" json:"store_name"`
	LocalID   UUID            `db:"local_id" json:"local_id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Operation Operation       `db:"operation" json:"operation"`
	Attempts  int             `db:"attempts" json:"attempts"`
	Synced    bool            `db:"synced" json:"synced"`
	GaveUp    bool            `db:"gave_up" json:"gave_up"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for SyncQueueEntry.
func (SyncQueueEntry) TableName() string {
	return "sync_queue"
}

// Time returns the enqueue timestamp as time.Time.
func (e *SyncQueueEntry) Time() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// Pending reports whether the entry is still eligible for a sync pass.
func (e *SyncQueueEntry) Pending() bool {
	return !e.Synced
}

// SyncStatus summarizes the queue for callers. Failed counts entries that
// exhausted their attempts; those also carry Synced=true, so Pending and
// Failed never overlap.
type SyncStatus struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// StoreStats describes one local store for storage reporting.
type StoreStats struct {
	Records     int     `json:"records"`
	EstimatedKB float64 `json:"estimated_kb"`
}
