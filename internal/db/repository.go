// Package db provides CRUD repository operations for ClearPath data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/clearpath-app/backend/internal/errors"
	"github.com/clearpath-app/backend/internal/models"
	"github.com/clearpath-app/backend/internal/uuid"
)

// payloadTables is the whitelist of payload stores addressable by name.
var payloadTables = map[string]bool{
	models.ProgressEntry{}.TableName():  true,
	models.CravingEntry{}.TableName():   true,
	models.TaskEntry{}.TableName():      true,
	models.ConsumptionLog{}.TableName(): true,
}

// PayloadStores returns the payload store names in a stable order.
func PayloadStores() []string {
	return []string{
		models.ProgressEntry{}.TableName(),
		models.CravingEntry{}.TableName(),
		models.TaskEntry{}.TableName(),
		models.ConsumptionLog{}.TableName(),
	}
}

// Repository provides CRUD operations for all models.
// Statements are prepared on first use and cached for reuse.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ready returns an error if the underlying database was never opened.
// Every public method starts here so callers see a consistent failure
// instead of a nil dereference.
func (r *Repository) ready() error {
	if r == nil || r.db == nil {
		return apperrors.New(apperrors.ErrNotInitialized, "local store is not initialized")
	}
	return nil
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// ProgressEntry Operations
// =====================================================

// CreateProgressEntry creates a new progress entry.
func (r *Repository) CreateProgressEntry(e *models.ProgressEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if e.LocalID == "" {
		e.LocalID = models.UUID(uuid.New())
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
	INSERT INTO progress_entries (local_id, server_id, user_id, date, smoke_free,
		craving_intensity, mood, symptoms, synced, operation, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, e.LocalID, e.ServerID, e.UserID, e.Date, e.SmokeFree,
		e.CravingIntensity, e.Mood, e.Symptoms, e.Synced, e.Operation,
		e.CreatedAt, e.UpdatedAt)
	return err
}

// GetProgressEntry retrieves a progress entry by local ID.
func (r *Repository) GetProgressEntry(localID string) (*models.ProgressEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `
	SELECT local_id, server_id, user_id, date, smoke_free, craving_intensity,
		   mood, symptoms, synced, operation, created_at, updated_at
	FROM progress_entries WHERE local_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var e models.ProgressEntry
	err = stmt.QueryRow(localID).Scan(
		&e.LocalID, &e.ServerID, &e.UserID, &e.Date, &e.SmokeFree,
		&e.CravingIntensity, &e.Mood, &e.Symptoms, &e.Synced, &e.Operation,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListProgressEntries returns a user's progress entries, optionally bounded
// by a day range (YYYY-MM-DD, inclusive).
func (r *Repository) ListProgressEntries(userID, fromDay, toDay string) ([]*models.ProgressEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(
		&UserFilter{UserID: userID},
		&DayRangeFilter{Column: "date", From: fromDay, To: toDay},
	)
	query := `
	SELECT local_id, server_id, user_id, date, smoke_free, craving_intensity,
		   mood, symptoms, synced, operation, created_at, updated_at
	FROM progress_entries` + where + ` ORDER BY date DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ProgressEntry
	for rows.Next() {
		var e models.ProgressEntry
		err := rows.Scan(
			&e.LocalID, &e.ServerID, &e.UserID, &e.Date, &e.SmokeFree,
			&e.CravingIntensity, &e.Mood, &e.Symptoms, &e.Synced, &e.Operation,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// UpdateProgressEntry updates an existing progress entry.
func (r *Repository) UpdateProgressEntry(e *models.ProgressEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	e.Touch()
	query := `
	UPDATE progress_entries
	SET server_id = ?, user_id = ?, date = ?, smoke_free = ?, craving_intensity = ?,
		mood = ?, symptoms = ?, synced = ?, operation = ?, updated_at = ?
	WHERE local_id = ?
	`
	result, err := r.db.Exec(query, e.ServerID, e.UserID, e.Date, e.SmokeFree,
		e.CravingIntensity, e.Mood, e.Symptoms, e.Synced, e.Operation,
		e.UpdatedAt, e.LocalID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", e.TableName(), e.LocalID)
	}
	return nil
}

// =====================================================
// CravingEntry Operations
// =====================================================

// CreateCravingEntry creates a new craving entry.
func (r *Repository) CreateCravingEntry(e *models.CravingEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if e.LocalID == "" {
		e.LocalID = models.UUID(uuid.New())
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
	INSERT INTO craving_entries (local_id, server_id, user_id, occurred_at, intensity,
		craving_trigger, coping_strategy, outcome, synced, operation, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, e.LocalID, e.ServerID, e.UserID, e.OccurredAt, e.Intensity,
		e.Trigger, e.CopingStrategy, e.Outcome, e.Synced, e.Operation,
		e.CreatedAt, e.UpdatedAt)
	return err
}

// GetCravingEntry retrieves a craving entry by local ID.
func (r *Repository) GetCravingEntry(localID string) (*models.CravingEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `
	SELECT local_id, server_id, user_id, occurred_at, intensity, craving_trigger,
		   coping_strategy, outcome, synced, operation, created_at, updated_at
	FROM craving_entries WHERE local_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var e models.CravingEntry
	err = stmt.QueryRow(localID).Scan(
		&e.LocalID, &e.ServerID, &e.UserID, &e.OccurredAt, &e.Intensity,
		&e.Trigger, &e.CopingStrategy, &e.Outcome, &e.Synced, &e.Operation,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListCravingEntries returns a user's craving entries, optionally bounded by
// an occurrence timestamp range (unix seconds, inclusive).
func (r *Repository) ListCravingEntries(userID string, from, to int64) ([]*models.CravingEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(
		&UserFilter{UserID: userID},
		&TimestampRangeFilter{Column: "occurred_at", From: from, To: to},
	)
	query := `
	SELECT local_id, server_id, user_id, occurred_at, intensity, craving_trigger,
		   coping_strategy, outcome, synced, operation, created_at, updated_at
	FROM craving_entries` + where + ` ORDER BY occurred_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.CravingEntry
	for rows.Next() {
		var e models.CravingEntry
		err := rows.Scan(
			&e.LocalID, &e.ServerID, &e.UserID, &e.OccurredAt, &e.Intensity,
			&e.Trigger, &e.CopingStrategy, &e.Outcome, &e.Synced, &e.Operation,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// UpdateCravingEntry updates an existing craving entry.
func (r *Repository) UpdateCravingEntry(e *models.CravingEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	e.Touch()
	query := `
	UPDATE craving_entries
	SET server_id = ?, user_id = ?, occurred_at = ?, intensity = ?, craving_trigger = ?,
		coping_strategy = ?, outcome = ?, synced = ?, operation = ?, updated_at = ?
	WHERE local_id = ?
	`
	result, err := r.db.Exec(query, e.ServerID, e.UserID, e.OccurredAt, e.Intensity,
		e.Trigger, e.CopingStrategy, e.Outcome, e.Synced, e.Operation,
		e.UpdatedAt, e.LocalID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", e.TableName(), e.LocalID)
	}
	return nil
}

// =====================================================
// TaskEntry Operations
// =====================================================

// CreateTaskEntry creates a new task entry.
func (r *Repository) CreateTaskEntry(e *models.TaskEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if e.LocalID == "" {
		e.LocalID = models.UUID(uuid.New())
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
	INSERT INTO task_entries (local_id, server_id, user_id, title, due_date,
		completed, priority, points, synced, operation, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, e.LocalID, e.ServerID, e.UserID, e.Title, e.DueDate,
		e.Completed, e.Priority, e.Points, e.Synced, e.Operation,
		e.CreatedAt, e.UpdatedAt)
	return err
}

// GetTaskEntry retrieves a task entry by local ID.
func (r *Repository) GetTaskEntry(localID string) (*models.TaskEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `
	SELECT local_id, server_id, user_id, title, due_date, completed, priority,
		   points, synced, operation, created_at, updated_at
	FROM task_entries WHERE local_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var e models.TaskEntry
	err = stmt.QueryRow(localID).Scan(
		&e.LocalID, &e.ServerID, &e.UserID, &e.Title, &e.DueDate, &e.Completed,
		&e.Priority, &e.Points, &e.Synced, &e.Operation, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListTaskEntries returns a user's tasks, optionally bounded by a due date
// range (YYYY-MM-DD, inclusive).
func (r *Repository) ListTaskEntries(userID, fromDay, toDay string) ([]*models.TaskEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(
		&UserFilter{UserID: userID},
		&DayRangeFilter{Column: "due_date", From: fromDay, To: toDay},
	)
	query := `
	SELECT local_id, server_id, user_id, title, due_date, completed, priority,
		   points, synced, operation, created_at, updated_at
	FROM task_entries` + where + ` ORDER BY due_date ASC, created_at ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.TaskEntry
	for rows.Next() {
		var e models.TaskEntry
		err := rows.Scan(
			&e.LocalID, &e.ServerID, &e.UserID, &e.Title, &e.DueDate, &e.Completed,
			&e.Priority, &e.Points, &e.Synced, &e.Operation, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// UpdateTaskEntry updates an existing task entry.
func (r *Repository) UpdateTaskEntry(e *models.TaskEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	e.Touch()
	query := `
	UPDATE task_entries
	SET server_id = ?, user_id = ?, title = ?, due_date = ?, completed = ?,
		priority = ?, points = ?, synced = ?, operation = ?, updated_at = ?
	WHERE local_id = ?
	`
	result, err := r.db.Exec(query, e.ServerID, e.UserID, e.Title, e.DueDate,
		e.Completed, e.Priority, e.Points, e.Synced, e.Operation,
		e.UpdatedAt, e.LocalID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", e.TableName(), e.LocalID)
	}
	return nil
}

// =====================================================
// ConsumptionLog Operations
// =====================================================

// CreateConsumptionLog creates a new consumption log.
func (r *Repository) CreateConsumptionLog(e *models.ConsumptionLog) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if e.LocalID == "" {
		e.LocalID = models.UUID(uuid.New())
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
	INSERT INTO consumption_logs (local_id, server_id, user_id, product_id,
		logged_at, quantity, synced, operation, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, e.LocalID, e.ServerID, e.UserID, e.ProductID,
		e.LoggedAt, e.Quantity, e.Synced, e.Operation, e.CreatedAt, e.UpdatedAt)
	return err
}

// GetConsumptionLog retrieves a consumption log by local ID.
func (r *Repository) GetConsumptionLog(localID string) (*models.ConsumptionLog, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `
	SELECT local_id, server_id, user_id, product_id, logged_at, quantity,
		   synced, operation, created_at, updated_at
	FROM consumption_logs WHERE local_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var e models.ConsumptionLog
	err = stmt.QueryRow(localID).Scan(
		&e.LocalID, &e.ServerID, &e.UserID, &e.ProductID, &e.LoggedAt,
		&e.Quantity, &e.Synced, &e.Operation, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListConsumptionLogs returns a user's consumption logs, optionally bounded
// by a logged-at timestamp range (unix seconds, inclusive).
func (r *Repository) ListConsumptionLogs(userID string, from, to int64) ([]*models.ConsumptionLog, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	where, args := BuildWhere(
		&UserFilter{UserID: userID},
		&TimestampRangeFilter{Column: "logged_at", From: from, To: to},
	)
	query := `
	SELECT local_id, server_id, user_id, product_id, logged_at, quantity,
		   synced, operation, created_at, updated_at
	FROM consumption_logs` + where + ` ORDER BY logged_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ConsumptionLog
	for rows.Next() {
		var e models.ConsumptionLog
		err := rows.Scan(
			&e.LocalID, &e.ServerID, &e.UserID, &e.ProductID, &e.LoggedAt,
			&e.Quantity, &e.Synced, &e.Operation, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}

// UpdateConsumptionLog updates an existing consumption log.
func (r *Repository) UpdateConsumptionLog(e *models.ConsumptionLog) error {
	if err := r.ready(); err != nil {
		return err
	}
	e.Touch()
	query := `
	UPDATE consumption_logs
	SET server_id = ?, user_id = ?, product_id = ?, logged_at = ?, quantity = ?,
		synced = ?, operation = ?, updated_at = ?
	WHERE local_id = ?
	`
	result, err := r.db.Exec(query, e.ServerID, e.UserID, e.ProductID, e.LoggedAt,
		e.Quantity, e.Synced, e.Operation, e.UpdatedAt, e.LocalID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", e.TableName(), e.LocalID)
	}
	return nil
}

// =====================================================
// Store-addressed Operations
// =====================================================
// The sync engine and the delete path address records generically by
// (store name, local id); these helpers validate the store name against
// the whitelist before touching SQL.

// validStore returns an error for store names outside the whitelist.
func validStore(store string) error {
	if !payloadTables[store] {
		return apperrors.Newf(apperrors.ErrUnknownStore, "unknown store: %s", store)
	}
	return nil
}

// MarkRecordSynced flips a payload record to synced. A non-empty serverID is
// adopted; an already-assigned server ID is never overwritten.
func (r *Repository) MarkRecordSynced(store, localID, serverID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := validStore(store); err != nil {
		return err
	}

	// server_id is immutable once assigned; the CASE keeps an existing value.
	query := fmt.Sprintf(
		`UPDATE %s SET synced = 1,
			server_id = CASE WHEN server_id = '' THEN ? ELSE server_id END
		 WHERE local_id = ?`, store)
	result, err := r.db.Exec(query, serverID, localID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", store, localID)
	}
	return nil
}

// MarkRecordDeleting flags a payload record for deferred deletion. The row
// stays visible until the remote backend confirms the delete. Returns the
// record's user id so the queue entry for the delete stays attributable.
func (r *Repository) MarkRecordDeleting(store, localID string) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	if err := validStore(store); err != nil {
		return "", err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var userID string
	query := fmt.Sprintf(`SELECT user_id FROM %s WHERE local_id = ?`, store)
	if err := tx.QueryRow(query, localID).Scan(&userID); err != nil {
		if err == sql.ErrNoRows {
			return "", apperrors.Newf(apperrors.ErrRecordNotFound,
				"record not found in %s: %s", store, localID)
		}
		return "", err
	}

	query = fmt.Sprintf(
		`UPDATE %s SET operation = ?, synced = 0 WHERE local_id = ?`, store)
	if _, err := tx.Exec(query, models.OperationDelete, localID); err != nil {
		return "", err
	}

	return userID, tx.Commit()
}

// DeleteRecord physically removes a payload record.
func (r *Repository) DeleteRecord(store, localID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := validStore(store); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE local_id = ?`, store)
	result, err := r.db.Exec(query, localID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound,
			"record not found in %s: %s", store, localID)
	}
	return nil
}
