package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "Not Started"
	MilestoneActive     MilestoneStatus = "Active"
	MilestoneCompleted  MilestoneStatus = "Completed"
)

// Milestone goals are cumulative: Goal = project goal * Percentage / 100.
type Milestone struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID   uint64          `gorm:"not null;uniqueIndex:uk_project_milestone" json:"project_id"`
	MilestoneNo int             `gorm:"not null;uniqueIndex:uk_project_milestone" json:"milestone_no"`
	Title       string          `gorm:"size:250" json:"title"`
	Percentage  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Goal        decimal.Decimal `gorm:"type:decimal(16,2);not null" json:"goal"`
	Status      MilestoneStatus `gorm:"size:25;not null;default:'Not Started'" json:"status"`
	Approved    bool            `gorm:"not null;default:false" json:"approved"`
	Withdrawn   bool            `gorm:"not null;default:false" json:"withdrawn"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Milestone) TableName() string {
	return "milestones"
}
