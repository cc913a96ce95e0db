// Package models provides data model definitions for the ClearPath offline backend.
package models

import (
	"database/sql/driver"
	"fmt"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Operation is the pending action a record still owes the remote backend.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is one of the three known operations.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncMeta is the sync bookkeeping shared by every payload record.
// A record is local-only until ServerID is set by the remote backend.
type SyncMeta struct {
	LocalID   UUID      `db:"local_id" json:"local_id"`
	ServerID  string    `db:"server_id" json:"id,omitempty"`
	UserID    string    `db:"user_id" json:"user_id"`
	Synced    bool      `db:"synced" json:"synced"`
	Operation Operation `db:"operation" json:"operation"`
	CreatedAt int64     `db:"created_at" json:"created_at"`
	UpdatedAt int64     `db:"updated_at" json:"updated_at"`
}

// Meta exposes the shared sync metadata of a payload record.
type Record interface {
	Meta() *SyncMeta
	TableName() string
}
