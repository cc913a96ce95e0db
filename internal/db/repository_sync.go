// Package db provides sync queue and maintenance operations for the local store.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/uuid"
)

// =====================================================
// SyncQueue Operations
// =====================================================

// EnqueueSync records a pending mutation. Any earlier pending entry for the
// same record is replaced, so one record never holds more than one spot in
// the queue (last write wins).
func (r *Repository) EnqueueSync(entry *models.SyncQueueEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	if !entry.Operation.Valid() {
		return apperrors.Newf(apperrors.ErrInvalid, "invalid queue operation: %s", entry.Operation)
	}

	if entry.ID == "" {
		entry.ID = models.UUID(uuid.New())
	} else if err := uuid.Validate(string(entry.ID)); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid queue entry id", err)
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Collapse: drop any not-yet-synced entry for the same record.
	if _, err := tx.Exec(
		`DELETE FROM sync_queue WHERE local_id = ? AND synced = 0`, entry.LocalID); err != nil {
		return err
	}

	query := `
	INSERT INTO sync_queue (id, store_name, local_id, user_id, payload, operation,
		attempts, synced, gave_up, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, entry.ID, entry.StoreName, entry.LocalID, entry.UserID,
		string(entry.Payload), entry.Operation, entry.Attempts, entry.Synced,
		entry.GaveUp, entry.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// scanQueueRows reads queue entries from a result set.
func scanQueueRows(rows *sql.Rows) ([]*models.SyncQueueEntry, error) {
	var entries []*models.SyncQueueEntry
	for rows.Next() {
		var e models.SyncQueueEntry
		var payload string
		err := rows.Scan(&e.ID, &e.StoreName, &e.LocalID, &e.UserID, &payload,
			&e.Operation, &e.Attempts, &e.Synced, &e.GaveUp, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const queueColumns = `id, store_name, local_id, user_id, payload, operation,
	attempts, synced, gave_up, created_at`

// ListQueue returns every queue entry, oldest first.
func (r *Repository) ListQueue() ([]*models.SyncQueueEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(
		`SELECT ` + queueColumns + ` FROM sync_queue ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

// ListPendingQueue returns entries still awaiting sync, oldest enqueued
// first. Oldest-first approximates the causal order of local mutations.
func (r *Repository) ListPendingQueue() ([]*models.SyncQueueEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(&PendingFilter{})
	rows, err := r.db.Query(
		`SELECT `+queueColumns+` FROM sync_queue`+where+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

// GetQueueEntry retrieves a single queue entry by ID.
func (r *Repository) GetQueueEntry(id string) (*models.SyncQueueEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	row := r.db.QueryRow(`SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id)

	var e models.SyncQueueEntry
	var payload string
	err := row.Scan(&e.ID, &e.StoreName, &e.LocalID, &e.UserID, &payload,
		&e.Operation, &e.Attempts, &e.Synced, &e.GaveUp, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// MarkQueueSynced marks a queue entry as acknowledged by the backend.
func (r *Repository) MarkQueueSynced(id string) error {
	if err := r.ready(); err != nil {
		return err
	}
	result, err := r.db.Exec(`UPDATE sync_queue SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in sync_queue: %s", id)
	}
	return nil
}

// RecordQueueFailure increments an entry's attempt counter. Once the counter
// reaches models.MaxSyncAttempts the entry is abandoned: synced is forced
// true so it leaves the pending set, and gave_up marks that it never
// succeeded. Returns the new attempt count and whether the entry gave up.
func (r *Repository) RecordQueueFailure(id string) (int, bool, error) {
	if err := r.ready(); err != nil {
		return 0, false, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRow(
		`SELECT attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, false, err
	}

	attempts++
	gaveUp := attempts >= models.MaxSyncAttempts

	if gaveUp {
		_, err = tx.Exec(
			`UPDATE sync_queue SET attempts = ?, synced = 1, gave_up = 1 WHERE id = ?`,
			attempts, id)
	} else {
		_, err = tx.Exec(
			`UPDATE sync_queue SET attempts = ? WHERE id = ?`, attempts, id)
	}
	if err != nil {
		return 0, false, err
	}

	return attempts, gaveUp, tx.Commit()
}

// DeleteQueueForRecord removes pending queue entries referencing a record.
// Used when a never-synced record is deleted locally so no orphaned entry
// survives it.
func (r *Repository) DeleteQueueForRecord(localID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE local_id = ? AND synced = 0`, localID)
	return err
}

// QueueStatus summarizes the queue. Failed counts gave-up entries, which
// also carry synced=1, so pending and failed never overlap.
func (r *Repository) QueueStatus() (models.SyncStatus, error) {
	var status models.SyncStatus
	if err := r.ready(); err != nil {
		return status, err
	}
	err := r.db.QueryRow(`
	SELECT COUNT(*),
		   COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN gave_up = 1 THEN 1 ELSE 0 END), 0)
	FROM sync_queue
	`).Scan(&status.Total, &status.Pending, &status.Failed)
	return status, err
}

// HasPendingQueue reports whether any entry still awaits sync.
func (r *Repository) HasPendingQueue() (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_queue WHERE synced = 0`).Scan(&count)
	return count > 0, err
}

// =====================================================
// Maintenance Operations
// =====================================================

// CleanupQueue removes synced queue entries enqueued before the cutoff, to
// bound storage growth. Unsynced entries are never removed regardless of
// age. Returns the number of entries removed.
func (r *Repository) CleanupQueue(cutoff time.Time) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	result, err := r.db.Exec(
		`DELETE FROM sync_queue WHERE synced = 1 AND created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	removed, err := result.RowsAffected()
	return int(removed), err
}

// DeleteUserData removes every payload record and queue entry belonging to
// one user. Other users' data and queue entries are untouched.
func (r *Repository) DeleteUserData(userID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if userID == "" {
		return apperrors.New(apperrors.ErrInvalid, "user id is required")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, store := range PayloadStores() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, store)
		if _, err := tx.Exec(query, userID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM sync_queue WHERE user_id = ?`, userID); err != nil {
		return err
	}

	return tx.Commit()
}

// ClearAll wipes all payload stores and the sync queue unconditionally.
func (r *Repository) ClearAll() error {
	if err := r.ready(); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, store := range PayloadStores() {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, store)); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM sync_queue`); err != nil {
		return err
	}

	return tx.Commit()
}

// StoreStats reports record counts and estimated sizes per store. Size is
// estimated by serializing every row to JSON and summing byte lengths.
func (r *Repository) StoreStats() (map[string]models.StoreStats, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	stats := make(map[string]models.StoreStats)
	stores := append(PayloadStores(), models.SyncQueueEntry{}.TableName())

	for _, store := range stores {
		count, bytes, err := r.dumpStoreSize(store)
		if err != nil {
			return nil, err
		}
		stats[store] = models.StoreStats{
			Records:     count,
			EstimatedKB: float64(bytes) / 1024.0,
		}
	}
	return stats, nil
}

// dumpStoreSize serializes every row of one table and sums the byte lengths.
func (r *Repository) dumpStoreSize(store string) (int, int, error) {
	rows, err := r.db.Query(fmt.Sprintf(`SELECT * FROM %s`, store))
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, 0, err
	}

	count := 0
	size := 0
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, 0, err
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		data, err := json.Marshal(record)
		if err != nil {
			return 0, 0, err
		}
		count++
		size += len(data)
	}
	return count, size, rows.Err()
}
