package models

import (
	"time"
)

// ProcessedEvent records a log that has been applied to the ledger.
type ProcessedEvent struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash      string    `gorm:"uniqueIndex:uk_tx_log;size:66;not null" json:"tx_hash"`
	LogIndex    uint64    `gorm:"uniqueIndex:uk_tx_log;not null" json:"log_index"`
	EventKind   string    `gorm:"size:40;not null" json:"event_kind"`
	BlockNumber *uint64   `json:"block_number"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Wallet{},
		&Project{},
		&Milestone{},
		&Donation{},
		&Transaction{},
		&AuditRecord{},
		&ProcessedEvent{},
		&SyncCursor{},
	}
}
