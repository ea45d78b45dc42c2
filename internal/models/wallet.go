package models

import (
	"time"
)

// Wallet addresses are stored lowercased.
type Wallet struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"size:42;not null;uniqueIndex" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
