// Package models provides data model definitions for the ClearPath offline backend.
package models

import "time"

// ConsumptionLog records one use of a nicotine product.
type ConsumptionLog struct {
	SyncMeta
	ProductID string  `db:"product_id" json:"product_id"`
	LoggedAt  int64   `db:"logged_at" json:"logged_at"`
	Quantity  float64 `db:"quantity" json:"quantity"`
}

// TableName returns the table name for ConsumptionLog.
func (ConsumptionLog) TableName() string {
	return "consumption_logs"
}

// Meta returns the shared sync metadata.
func (c *ConsumptionLog) Meta() *SyncMeta {
	return &c.SyncMeta
}

// LoggedAtTime returns LoggedAt as time.Time.
func (c *ConsumptionLog) LoggedAtTime() time.Time {
	return time.Unix(c.LoggedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (c *ConsumptionLog) Touch() {
	c.UpdatedAt = time.Now().Unix()
}
