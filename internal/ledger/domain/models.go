package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageCounter is one per-account, per-period consumption counter. Rows are
// created on first consumption in a period and retained after the period
// closes for historical reporting; the service only ever increments the
// current period's row.
type UsageCounter struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID string       `json:"account_id" gorm:"type:text;not null;uniqueIndex:ux_usage_counters_key,priority:1"`
	Resource  string       `json:"resource" gorm:"type:text;not null;uniqueIndex:ux_usage_counters_key,priority:2"`
	Period    string       `json:"period" gorm:"type:text;not null;uniqueIndex:ux_usage_counters_key,priority:3"`
	Used      int64        `json:"used" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "usage_counters" }

// CapacitySnapshot mirrors the live total of a durable resource owned by an
// external collaborator. The owner reports new totals; this service only
// reads them to authorize creation.
type CapacitySnapshot struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID string       `json:"account_id" gorm:"type:text;not null;uniqueIndex:ux_capacity_snapshots_key,priority:1"`
	Resource  string       `json:"resource" gorm:"type:text;not null;uniqueIndex:ux_capacity_snapshots_key,priority:2"`
	Total     int64        `json:"total" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CapacitySnapshot) TableName() string { return "capacity_snapshots" }

// ConsumptionResult reports the outcome of an atomic check-and-increment.
type ConsumptionResult struct {
	Accepted bool
	NewCount int64
}

// HistoryEntry is one open or closed period counter, for reporting.
type HistoryEntry struct {
	Period   string `json:"period"`
	Resource string `json:"resource"`
	Used     int64  `json:"used"`
}
