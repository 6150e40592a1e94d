package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription statuses that still count toward membership. past_due is kept
// deliberately: Stripe retries the charge for days before moving to unpaid.
const (
	SubStatusTrialing = "trialing"
	SubStatusActive   = "active"
	SubStatusPastDue  = "past_due"
)

// User holds identity, the denormalized wallet balance, the Stripe
// subscription snapshot and the auto-refill policy. The snapshot fields are
// owned by the billing reconciler; nobody else writes them.
type User struct {
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Fullname     string    `gorm:"column:fullname;not null" json:"fullname"`
	Email        string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	Role         string    `gorm:"column:role;not null;default:member" json:"role"`
	Zip          string    `gorm:"column:zip;not null" json:"zip"`

	// Wallet. Balance mirrors the latest completed wallet_transactions entry
	// and is only ever mutated inside the same transaction as that entry.
	WalletBalanceCents int64 `gorm:"column:wallet_balance_cents;not null;default:0" json:"wallet_balance_cents"`

	// Auto-refill policy.
	AutoRefillEnabled        bool    `gorm:"column:auto_refill_enabled;not null;default:false" json:"auto_refill_enabled"`
	AutoRefillAmountCents    int64   `gorm:"column:auto_refill_amount_cents;not null;default:0" json:"auto_refill_amount_cents"`
	LowBalanceThresholdCents int64   `gorm:"column:low_balance_threshold_cents;not null;default:0" json:"low_balance_threshold_cents"`
	SavedPaymentMethodID     *string `gorm:"column:saved_payment_method_id" json:"-"`

	// Subscription snapshot (see internal/billing).
	StripeCustomerID        *string    `gorm:"column:stripe_customer_id;index" json:"-"`
	StripeSubscriptionID    *string    `gorm:"column:stripe_subscription_id" json:"-"`
	SubscriptionStatus      *string    `gorm:"column:subscription_status" json:"subscription_status"`
	SubscriptionInterval    *string    `gorm:"column:subscription_interval" json:"subscription_interval"`
	SubscriptionAmountCents *int64     `gorm:"column:subscription_amount_cents" json:"subscription_amount_cents"`
	SubscriptionCurrency    *string    `gorm:"column:subscription_currency" json:"subscription_currency"`
	CurrentPeriodEnd        *time.Time `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd       bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	LastPaidAt              *time.Time `gorm:"column:last_paid_at" json:"last_paid_at"`
	SubscriptionSyncedAt    *time.Time `gorm:"column:subscription_synced_at" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// IsActiveMember derives monthly-member eligibility from the snapshot:
// monthly interval, a live status and a period end still in the future.
// Derived on read everywhere; never stored.
func (u *User) IsActiveMember(now time.Time) bool {
	if u.SubscriptionInterval == nil || *u.SubscriptionInterval != "month" {
		return false
	}
	if u.SubscriptionStatus == nil {
		return false
	}
	switch *u.SubscriptionStatus {
	case SubStatusTrialing, SubStatusActive, SubStatusPastDue:
	default:
		return false
	}
	return u.CurrentPeriodEnd != nil && u.CurrentPeriodEnd.After(now)
}

// HasSavedPaymentMethod reports whether an off-session charge is possible.
func (u *User) HasSavedPaymentMethod() bool {
	return u.SavedPaymentMethodID != nil && *u.SavedPaymentMethodID != "" &&
		u.StripeCustomerID != nil && *u.StripeCustomerID != ""
}
