package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DonationSourceStripe = "stripe"
	DonationSourceWallet = "wallet"
)

const (
	DonationKindOneTime   = "one_time"
	DonationKindRecurring = "recurring"
)

// Donation is a confirmed funding contribution, regardless of payment
// source. IdempotencyKey is the Stripe event/session id for processor
// donations and a locally generated token for wallet donations; its unique
// index is what makes at-least-once webhook delivery safe. Immutable.
type Donation struct {
	DonationID     uuid.UUID  `gorm:"column:donation_id;type:uuid;primaryKey" json:"donation_id"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid" json:"user_id"`
	ProjectID      uuid.UUID  `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	IdempotencyKey string     `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	Source         string     `gorm:"column:source;type:varchar(10);not null" json:"source"`
	Kind           string     `gorm:"column:kind;type:varchar(10);not null;default:one_time" json:"kind"`
	Currency       string     `gorm:"column:currency;not null;default:usd" json:"currency"`
	AmountCents    int64      `gorm:"column:amount_cents;not null" json:"amount_cents"`
	CreatedAt      time.Time  `gorm:"column:createdAt" json:"createdAt"`
}

func (Donation) TableName() string {
	return "donations"
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.DonationID == uuid.Nil {
		d.DonationID = uuid.New()
	}
	return nil
}
