package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
)

// AuditLog is an append-only trail of administrative actions. Entries are
// written regardless of outcome, so a rejected transition is as visible as
// a successful one.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ActorID    uuid.UUID      `gorm:"column:actor_id;type:uuid;not null;index" json:"actor_id"`
	Action     string         `gorm:"column:action;not null" json:"action"`
	TargetType string         `gorm:"column:target_type;not null" json:"target_type"`
	TargetID   string         `gorm:"column:target_id;not null" json:"target_id"`
	Outcome    string         `gorm:"column:outcome;not null" json:"outcome"`
	Details    datatypes.JSON `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
