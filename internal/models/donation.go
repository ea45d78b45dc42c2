package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Donation is the cumulative pledged amount of one wallet to one project.
type Donation struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID  uint64          `gorm:"not null;uniqueIndex:uk_project_wallet" json:"project_id"`
	WalletID   uint64          `gorm:"not null;uniqueIndex:uk_project_wallet" json:"wallet_id"`
	Wallet     *Wallet         `gorm:"foreignKey:WalletID" json:"wallet,omitempty"`
	Amount     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"amount"`
	Refundable bool            `gorm:"not null;default:false" json:"refundable"`
	Refunded   bool            `gorm:"not null;default:false" json:"refunded"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Donation) TableName() string {
	return "donations"
}
