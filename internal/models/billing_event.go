package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingEvent records every processed Stripe webhook event. The unique
// EventID is the first line of defense against at-least-once redelivery;
// the raw payload is kept for audit and replay debugging.
type BillingEvent struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID    string         `gorm:"column:event_id;not null;uniqueIndex" json:"event_id"`
	Type       string         `gorm:"column:type;not null" json:"type"`
	RawPayload datatypes.JSON `gorm:"column:raw_payload;type:jsonb;not null" json:"raw_payload"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (BillingEvent) TableName() string {
	return "billing_events"
}

func (e *BillingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
