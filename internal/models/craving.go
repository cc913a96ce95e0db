// Package models provides data model definitions for the ClearPath offline backend.
package models

import "time"

// CravingEntry records a single craving episode and how it was handled.
type CravingEntry struct {
	SyncMeta
	OccurredAt     int64  `db:"occurred_at" json:"occurred_at"`
	Intensity      int    `db:"intensity" json:"intensity"`
	Trigger        string `db:"craving_trigger" json:"trigger"`
	CopingStrategy string `db:"coping_strategy" json:"coping_strategy"`
	Outcome        string `db:"outcome" json:"outcome"` // resisted, smoked
}

// TableName returns the table name for CravingEntry.
func (CravingEntry) TableName() string {
	return "craving_entries"
}

// Meta returns the shared sync metadata.
func (c *CravingEntry) Meta() *SyncMeta {
	return &c.SyncMeta
}

// OccurredAtTime returns OccurredAt as time.Time.
func (c *CravingEntry) OccurredAtTime() time.Time {
	return time.Unix(c.OccurredAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (c *CravingEntry) Touch() {
	c.UpdatedAt = time.Now().Unix()
}
