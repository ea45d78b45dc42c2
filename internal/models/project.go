package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "PENDING"
	ApprovalApproved    ApprovalStatus = "APPROVED"
	ApprovalDisapproved ApprovalStatus = "DISAPPROVED"
	ApprovalFlagged     ApprovalStatus = "FLAGGED"
)

type ProjectStatus string

const (
	ProjectFunding             ProjectStatus = "Funding"
	ProjectUnderImplementation ProjectStatus = "Under Implementation"
	ProjectCancelled           ProjectStatus = "Cancelled"
	ProjectCompleted           ProjectStatus = "Completed"
	ProjectFailed              ProjectStatus = "Failed"
)

// Project is an organization's campaign. It is authored off-chain and only
// confirmed and advanced by reconciliation once the contract reports on it.
type Project struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrganizationID uint64          `gorm:"not null;index" json:"organization_id"`
	Title          string          `gorm:"size:255;not null" json:"title"`
	Goal           decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"goal"`
	TotalFunds     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_funds"`
	Progress       decimal.Decimal `gorm:"type:decimal(7,2);not null;default:0" json:"progress"`
	ApprovalStatus ApprovalStatus  `gorm:"size:20;not null;default:PENDING;index" json:"approval_status"`
	Status         ProjectStatus   `gorm:"size:25;not null;default:Funding" json:"status"`
	Deployed       bool            `gorm:"not null;default:false" json:"deployed"`
	ContractID     *uint64         `gorm:"uniqueIndex" json:"contract_id"`
	WalletAddress  string          `gorm:"size:42;not null;index" json:"wallet_address"`
	Deadline       *time.Time      `json:"deadline"`
	Milestones     []Milestone     `gorm:"foreignKey:ProjectID" json:"milestones,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
