package models

import (
	"time"
)

type AuditStage string

const (
	AuditStageRequest   AuditStage = "request"
	AuditStageNormalize AuditStage = "normalize"
	AuditStageDecode    AuditStage = "decode"
	AuditStageHandle    AuditStage = "handle"
	AuditStageFollowUp  AuditStage = "follow_up"
)

// AuditRecord is append-only. Data holds the raw delivery body so the record
// can be replayed.
type AuditRecord struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReplayKey string     `gorm:"size:36;not null;uniqueIndex" json:"replay_key"`
	Stage     AuditStage `gorm:"size:20;not null;index" json:"stage"`
	EventKind string     `gorm:"size:40" json:"event_kind,omitempty"`
	TxHash    string     `gorm:"size:66;index" json:"tx_hash,omitempty"`
	LogIndex  *uint64    `json:"log_index,omitempty"`
	Data      string     `gorm:"type:text;not null" json:"data"`
	Error     string     `gorm:"type:text" json:"error"`
	Notes     string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditRecord) TableName() string {
	return "audit_records"
}
