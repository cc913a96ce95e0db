// Package models provides data model definitions for the ClearPath offline backend.
package models

import "time"

// TaskEntry is a user task with gamification points.
type TaskEntry struct {
	SyncMeta
	Title     string `db:"title" json:"title"`
	DueDate   string `db:"due_date" json:"due_date"` // YYYY-MM-DD
	Completed bool   `db:"completed" json:"completed"`
	Priority  string `db:"priority" json:"priority"` // low, medium, high
	Points    int    `db:"points" json:"points"`
}

// TableName returns the table name for TaskEntry.
func (TaskEntry) TableName() string {
	return "task_entries"
}

// Meta returns the shared sync metadata.
func (t *TaskEntry) Meta() *SyncMeta {
	return &t.SyncMeta
}

// DueTime parses the due date. Returns the zero time if DueDate is malformed.
func (t *TaskEntry) DueTime() time.Time {
	d, _ := time.Parse("2006-01-02", t.DueDate)
	return d
}

// Touch updates the UpdatedAt timestamp.
func (t *TaskEntry) Touch() {
	t.UpdatedAt = time.Now().Unix()
}
