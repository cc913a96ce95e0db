// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// AppliedMigration records a migration that has been applied.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrations is the ordered schema history. Migrations are compiled in
// rather than read from disk so the daemon binary is self-contained.
var migrations = []Migration{
	{
		Version:     1,
		Description: "payload_stores",
		SQL: `
		CREATE TABLE progress_entries (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			smoke_free INTEGER NOT NULL DEFAULT 0,
			craving_intensity INTEGER NOT NULL DEFAULT 0,
			mood INTEGER NOT NULL DEFAULT 0,
			symptoms TEXT NOT NULL DEFAULT '',
			synced INTEGER NOT NULL DEFAULT 0,
			operation TEXT NOT NULL DEFAULT 'create',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX idx_progress_user ON progress_entries(user_id);
		CREATE INDEX idx_progress_date ON progress_entries(date);
		CREATE INDEX idx_progress_synced ON progress_entries(synced);

		CREATE TABLE craving_entries (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			intensity INTEGER NOT NULL DEFAULT 0,
			craving_trigger TEXT NOT NULL DEFAULT '',
			coping_strategy TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			synced INTEGER NOT NULL DEFAULT 0,
			operation TEXT NOT NULL DEFAULT 'create',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX idx_craving_user ON craving_entries(user_id);
		CREATE INDEX idx_craving_occurred ON craving_entries(occurred_at);
		CREATE INDEX idx_craving_synced ON craving_entries(synced);

		CREATE TABLE task_entries (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			due_date TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			priority TEXT NOT NULL DEFAULT 'medium',
			points INTEGER NOT NULL DEFAULT 0,
			synced INTEGER NOT NULL DEFAULT 0,
			operation TEXT NOT NULL DEFAULT 'create',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX idx_task_user ON task_entries(user_id);
		CREATE INDEX idx_task_due ON task_entries(due_date);
		CREATE INDEX idx_task_synced ON task_entries(synced);

		CREATE TABLE consumption_logs (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL DEFAULT '',
			logged_at INTEGER NOT NULL,
			quantity REAL NOT NULL DEFAULT 0,
			synced INTEGER NOT NULL DEFAULT 0,
			operation TEXT NOT NULL DEFAULT 'create',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX idx_consumption_user ON consumption_logs(user_id);
		CREATE INDEX idx_consumption_logged ON consumption_logs(logged_at);
		CREATE INDEX idx_consumption_synced ON consumption_logs(synced);
		`,
	},
	{
		Version:     2,
		Description: "sync_queue",
		SQL: `
		CREATE TABLE sync_queue (
			id TEXT PRIMARY KEY,
			store_name TEXT NOT NULL,
			local_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			operation TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			synced INTEGER NOT NULL DEFAULT 0,
			gave_up INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX idx_queue_store ON sync_queue(store_name);
		CREATE INDEX idx_queue_synced ON sync_queue(synced);
		CREATE INDEX idx_queue_created ON sync_queue(created_at);
		CREATE INDEX idx_queue_local ON sync_queue(local_id);
		`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]AppliedMigration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var mig AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !appliedVersions[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, mig := range pending {
		if err := m.applyMigration(mig); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.Version, err)
		}
	}

	return nil
}

// applyMigration applies a single migration inside a transaction.
func (m *Migrator) applyMigration(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(mig.SQL))
	checksum := hex.EncodeToString(hash[:])
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.Version, time.Now().Unix(), mig.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
