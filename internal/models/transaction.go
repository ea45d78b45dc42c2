package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TxKindPledge              TransactionKind = "Pledge"
	TxKindRefund              TransactionKind = "Refund"
	TxKindTip                 TransactionKind = "Tip"
	TxKindMilestoneWithdrawal TransactionKind = "Milestone Withdrawal"
	TxKindCampaignDeployment  TransactionKind = "Campaign Deployment"
)

type TransactionStatus string

const (
	TxStatusPending    TransactionStatus = "Pending"
	TxStatusSuccessful TransactionStatus = "Successful"
	TxStatusFailed     TransactionStatus = "Failed"
)

type Transaction struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID  uint64            `gorm:"not null;index:idx_wallet_status" json:"wallet_id"`
	Wallet    *Wallet           `gorm:"foreignKey:WalletID" json:"wallet,omitempty"`
	ProjectID *uint64           `gorm:"index" json:"project_id"`
	Kind      TransactionKind   `gorm:"column:event;size:25;not null" json:"event"`
	Status    TransactionStatus `gorm:"size:15;not null;index:idx_wallet_status" json:"status"`
	Amount    decimal.Decimal   `gorm:"type:decimal(14,2);not null;default:0" json:"amount"`
	Tip       decimal.Decimal   `gorm:"type:decimal(14,2);not null;default:0" json:"tip"`
	TxHash    string            `gorm:"size:66;index" json:"tx_hash"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
