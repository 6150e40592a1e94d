package wallet

import (
	"context"
	"encoding/json"
	"time"

	"civicfund-backend/internal/database"
	"civicfund-backend/internal/donations"
	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	Donations *donations.Service
	Charger   StripeCharger

	// RefillFloorCents is the minimum configurable auto-refill amount;
	// ChargeTimeout bounds the off-session Stripe charge.
	RefillFloorCents int64
	ChargeTimeout    time.Duration
}

// DebitResult is returned from a successful debit or credit.
type DebitResult struct {
	NewBalanceCents int64     `json:"new_balance_cents"`
	TxID            uuid.UUID `json:"tx_id"`
}

// Balance returns the user's current spendable balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, apperr.NotFound("User not found")
		}
		return 0, err
	}
	return user.WalletBalanceCents, nil
}

// Transactions returns the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.WalletTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("\"createdAt\" DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Debit spends wallet balance on a project. The four writes — balance
// decrement, debit ledger entry, wallet-sourced donation, project raised
// increment — are one transaction: all land or none do. The decrement is
// guarded in SQL so a concurrent debit can never drive the balance negative.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amountCents int64, projectID uuid.UUID) (*DebitResult, error) {
	if amountCents <= 0 {
		return nil, apperr.PreconditionFailed("", "Debit amount must be positive", nil)
	}

	var result DebitResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("User not found")
			}
			return err
		}
		if user.WalletBalanceCents < amountCents {
			return s.insufficientFunds(&user, amountCents)
		}

		res := tx.Model(&models.User{}).
			Where("user_id = ? AND wallet_balance_cents >= ?", userID, amountCents).
			UpdateColumn("wallet_balance_cents", gorm.Expr("wallet_balance_cents - ?", amountCents))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a race with another debit since the read above.
			if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
				return err
			}
			return s.insufficientFunds(&user, amountCents)
		}

		// Re-read under the row lock the decrement took: the ledger's
		// before/after must reflect the balance this debit actually moved,
		// not the pre-transaction read a concurrent debit may have outdated.
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		after := user.WalletBalanceCents
		entry := models.WalletTransaction{
			UserID:             userID,
			Type:               models.WalletTxDebit,
			AmountCents:        amountCents,
			BalanceBeforeCents: after + amountCents,
			BalanceAfterCents:  after,
			Status:             models.WalletTxCompleted,
			ProjectID:          &projectID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if _, err := donations.RecordInTx(tx, donations.RecordInput{
			Source:         models.DonationSourceWallet,
			IdempotencyKey: donations.NewWalletIdempotencyKey(),
			ProjectID:      projectID,
			UserID:         &userID,
			AmountCents:    amountCents,
		}, time.Now()); err != nil {
			return err
		}

		result = DebitResult{NewBalanceCents: after, TxID: entry.TxID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// insufficientFunds distinguishes "top up manually" from "auto-refill could
// close the gap": refill is viable when the policy is enabled with a saved
// method and balance + refill amount covers the debit.
func (s *Service) insufficientFunds(user *models.User, amountCents int64) error {
	canRefill := user.AutoRefillEnabled && user.HasSavedPaymentMethod() &&
		user.WalletBalanceCents+user.AutoRefillAmountCents >= amountCents
	return apperr.InsufficientFunds("Insufficient wallet balance", canRefill, map[string]interface{}{
		"balance_cents":  user.WalletBalanceCents,
		"required_cents": amountCents,
	})
}

// Credit adds funds. Idempotent with respect to externalRef: the unique
// index on the ledger's external payment ref makes redelivery of the same
// payment confirmation a Conflict, rolling back the whole transaction.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amountCents int64, externalRef string, metadata map[string]interface{}) (*DebitResult, error) {
	if amountCents <= 0 {
		return nil, apperr.PreconditionFailed("", "Credit amount must be positive", nil)
	}

	var result DebitResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("User not found")
			}
			return err
		}

		var ref *string
		if externalRef != "" {
			ref = &externalRef
		}
		var raw datatypes.JSON
		if metadata != nil {
			if b, err := json.Marshal(metadata); err == nil {
				raw = datatypes.JSON(b)
			}
		}

		// Increment first: the update takes the row lock, and the post-update
		// read gives the authoritative after-balance for the ledger entry. A
		// duplicate external ref fails the insert below and the rollback
		// undoes the increment.
		if err := tx.Model(&models.User{}).
			Where("user_id = ?", userID).
			UpdateColumn("wallet_balance_cents", gorm.Expr("wallet_balance_cents + ?", amountCents)).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		after := user.WalletBalanceCents
		entry := models.WalletTransaction{
			UserID:             userID,
			Type:               models.WalletTxCredit,
			AmountCents:        amountCents,
			BalanceBeforeCents: after - amountCents,
			BalanceAfterCents:  after,
			Status:             models.WalletTxCompleted,
			ExternalPaymentRef: ref,
			Metadata:           raw,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if database.IsDuplicate(err) {
				return apperr.Conflict("Payment already credited")
			}
			return err
		}

		result = DebitResult{NewBalanceCents: after, TxID: entry.TxID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DebitWithAutoRefill wraps Debit with the refill-then-retry flow: when the
// balance falls short but the policy can close the gap, charge the saved
// method, credit the wallet and retry the debit exactly once. A failed
// charge leaves the wallet untouched and is surfaced, not retried.
func (s *Service) DebitWithAutoRefill(ctx context.Context, userID uuid.UUID, amountCents int64, projectID uuid.UUID) (*DebitResult, error) {
	result, err := s.Debit(ctx, userID, amountCents, projectID)
	if err == nil {
		// Post-debit low-balance trigger; a failure here is logged, the
		// completed debit stands.
		if rerr := s.maybeRefillAfterDebit(ctx, userID, result.NewBalanceCents); rerr != nil {
			log.Warn().Err(rerr).Str("user_id", userID.String()).Msg("post-debit auto-refill failed")
		}
		return result, nil
	}

	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindInsufficientFunds || !e.CanAutoRefill {
		return nil, err
	}

	if _, rerr := s.Refill(ctx, userID); rerr != nil {
		return nil, apperr.InsufficientFunds("Insufficient wallet balance and auto-refill charge failed", false, map[string]interface{}{
			"refill_error": rerr.Error(),
		})
	}
	return s.Debit(ctx, userID, amountCents, projectID)
}

func (s *Service) maybeRefillAfterDebit(ctx context.Context, userID uuid.UUID, newBalance int64) error {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return err
	}
	if !user.AutoRefillEnabled || !user.HasSavedPaymentMethod() {
		return nil
	}
	if newBalance >= user.LowBalanceThresholdCents {
		return nil
	}
	_, err := s.Refill(ctx, userID)
	return err
}

// Refill performs one out-of-band charge for the policy's refill amount and
// credits the wallet, idempotent on the resulting payment intent id. The
// charge itself runs under a bounded timeout; past it, the charge counts as
// failed and nothing is credited.
func (s *Service) Refill(ctx context.Context, userID uuid.UUID) (*DebitResult, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}
	if !user.AutoRefillEnabled {
		return nil, apperr.PreconditionFailed("", "Auto-refill is not enabled", nil)
	}
	if !user.HasSavedPaymentMethod() {
		return nil, apperr.PreconditionFailed("", "No saved payment method on file", nil)
	}
	if s.Charger == nil {
		return nil, apperr.PreconditionFailed("", "Payments are not configured", nil)
	}

	timeout := s.ChargeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	chargeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	piID, err := s.Charger.Charge(chargeCtx, *user.StripeCustomerID, *user.SavedPaymentMethodID,
		user.AutoRefillAmountCents, "usd", map[string]string{
			"purpose": "wallet_auto_refill",
			"user_id": userID.String(),
		})
	if err != nil {
		return nil, err
	}

	creditMeta := map[string]interface{}{"reason": "auto_refill"}
	result, err := s.Credit(ctx, userID, user.AutoRefillAmountCents, piID, creditMeta)
	if err != nil && !apperr.IsKind(err, apperr.KindConflict) {
		// The card was already charged; one more attempt against the same
		// intent id before surfacing, so a transient store failure does not
		// strand the charge. The external ref keeps any later retry with
		// this id idempotent.
		log.Warn().Err(err).Str("payment_intent_id", piID).Str("user_id", userID.String()).Msg("crediting refill charge failed, retrying")
		result, err = s.Credit(ctx, userID, user.AutoRefillAmountCents, piID, creditMeta)
	}
	if apperr.IsKind(err, apperr.KindConflict) {
		// Charge already credited on a previous attempt.
		balance, berr := s.Balance(ctx, userID)
		if berr != nil {
			return nil, berr
		}
		return &DebitResult{NewBalanceCents: balance}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", piID).Str("user_id", userID.String()).Msg("refill charge made but credit failed")
		return nil, err
	}
	return result, nil
}

// AutoRefillInput for the policy endpoint.
type AutoRefillInput struct {
	Enabled                  bool  `json:"enabled"`
	RefillAmountCents        int64 `json:"refill_amount_cents"`
	LowBalanceThresholdCents int64 `json:"low_balance_threshold_cents"`
}

// UpdateAutoRefill validates and stores the user's auto-refill policy.
func (s *Service) UpdateAutoRefill(ctx context.Context, userID uuid.UUID, in AutoRefillInput) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	if in.Enabled {
		if !user.HasSavedPaymentMethod() {
			return nil, apperr.PreconditionFailed("", "A saved payment method is required to enable auto-refill", nil)
		}
		if in.RefillAmountCents < s.RefillFloorCents {
			return nil, apperr.PreconditionFailed("", "Refill amount is below the minimum", map[string]interface{}{
				"minimum_cents": s.RefillFloorCents,
			})
		}
		if in.LowBalanceThresholdCents >= in.RefillAmountCents {
			return nil, apperr.PreconditionFailed("", "Low-balance threshold must be below the refill amount", nil)
		}
	}

	updates := map[string]interface{}{
		"auto_refill_enabled":         in.Enabled,
		"auto_refill_amount_cents":    in.RefillAmountCents,
		"low_balance_threshold_cents": in.LowBalanceThresholdCents,
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
