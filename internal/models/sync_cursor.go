package models

import (
	"time"
)

// SyncCursor is the last block a log source has fully delivered.
type SyncCursor struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	BlockNumber uint64    `gorm:"not null" json:"block_number"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SyncCursor) TableName() string {
	return "sync_cursors"
}
