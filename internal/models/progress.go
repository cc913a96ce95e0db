// Package models provides data model definitions for the ClearPath offline backend.
package models

import "time"

// ProgressEntry is one day of a user's smoke-free progress.
type ProgressEntry struct {
	SyncMeta
	Date             string `db:"date" json:"date"` // YYYY-MM-DD
	SmokeFree        bool   `db:"smoke_free" json:"smoke_free"`
	CravingIntensity int    `db:"craving_intensity" json:"craving_intensity"`
	Mood             int    `db:"mood" json:"mood"`
	Symptoms         string `db:"symptoms" json:"symptoms"` // Comma-separated
}

// TableName returns the table name for ProgressEntry.
func (ProgressEntry) TableName() string {
	return "progress_entries"
}

// Meta returns the shared sync metadata.
func (p *ProgressEntry) Meta() *SyncMeta {
	return &p.SyncMeta
}

// DateTime parses the entry date. Returns the zero time if Date is malformed.
func (p *ProgressEntry) DateTime() time.Time {
	t, _ := time.Parse("2006-01-02", p.Date)
	return t
}

// Touch updates the UpdatedAt timestamp.
func (p *ProgressEntry) Touch() {
	p.UpdatedAt = time.Now().Unix()
}
