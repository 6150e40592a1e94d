package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	WalletTxCredit = "credit"
	WalletTxDebit  = "debit"
)

const (
	WalletTxPending   = "pending"
	WalletTxCompleted = "completed"
	WalletTxFailed    = "failed"
	WalletTxRefunded  = "refunded"
)

// WalletTransaction is one append-only ledger entry for a user's internal
// balance. BalanceBefore/BalanceAfter are captured at write time so the
// ledger audits itself; the user row's denormalized balance must equal the
// BalanceAfter of the latest completed entry. Only Status may change after
// creation (pending -> completed/failed).
type WalletTransaction struct {
	TxID               uuid.UUID      `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	UserID             uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type               string         `gorm:"column:type;type:varchar(10);not null" json:"type"`
	AmountCents        int64          `gorm:"column:amount_cents;not null" json:"amount_cents"`
	BalanceBeforeCents int64          `gorm:"column:balance_before_cents;not null" json:"balance_before_cents"`
	BalanceAfterCents  int64          `gorm:"column:balance_after_cents;not null" json:"balance_after_cents"`
	Status             string         `gorm:"column:status;not null;default:completed" json:"status"`
	ProjectID          *uuid.UUID     `gorm:"column:project_id;type:uuid" json:"project_id"`
	ExternalPaymentRef *string        `gorm:"column:external_payment_ref;uniqueIndex" json:"external_payment_ref"`
	Metadata           datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt          time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}
