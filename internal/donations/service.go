package donations

import (
	"context"
	"time"

	"civicfund-backend/internal/database"
	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"
	"civicfund-backend/internal/projects"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// RecordInput normalizes both contribution paths (Stripe checkout, wallet
// debit) into one donation shape. IdempotencyKey is the Stripe event/session
// id for processor donations and a locally generated token for wallet ones.
type RecordInput struct {
	Source         string
	IdempotencyKey string
	ProjectID      uuid.UUID
	UserID         *uuid.UUID
	AmountCents    int64
	Currency       string
	Kind           string
}

// NewWalletIdempotencyKey mints the local token for a wallet-sourced
// donation, so wallet debits flow through the same uniqueness gate as
// webhook-delivered contributions.
func NewWalletIdempotencyKey() string {
	return "wal_" + uuid.New().String()
}

// Record confirms a contribution in its own transaction.
func (s *Service) Record(ctx context.Context, in RecordInput) (*models.Donation, error) {
	var donation *models.Donation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		donation, err = RecordInTx(tx, in, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return donation, nil
}

// RecordInTx appends the donation, bumps the project's raised total exactly
// once and re-runs the lifecycle threshold check — all inside the caller's
// transaction. Re-processing the same idempotency key returns Conflict with
// no side effects, which webhook callers treat as already-processed.
func RecordInTx(tx *gorm.DB, in RecordInput, now time.Time) (*models.Donation, error) {
	if in.AmountCents <= 0 {
		return nil, apperr.PreconditionFailed("", "Donation amount must be positive", nil)
	}
	if in.Source != models.DonationSourceStripe && in.Source != models.DonationSourceWallet {
		return nil, apperr.PreconditionFailed("", "Unknown donation source", nil)
	}

	var project models.Project
	if err := tx.Where("project_id = ?", in.ProjectID).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = models.DonationKindOneTime
	}
	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}
	donation := models.Donation{
		UserID:         in.UserID,
		ProjectID:      in.ProjectID,
		IdempotencyKey: in.IdempotencyKey,
		Source:         in.Source,
		Kind:           kind,
		Currency:       currency,
		AmountCents:    in.AmountCents,
	}
	if err := tx.Create(&donation).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, apperr.Conflict("Donation already recorded for this payment")
		}
		return nil, err
	}

	if err := tx.Model(&models.Project{}).
		Where("project_id = ?", in.ProjectID).
		UpdateColumn("total_raised_cents", gorm.Expr("total_raised_cents + ?", in.AmountCents)).Error; err != nil {
		return nil, err
	}

	if err := projects.ThresholdCheckTx(tx, in.ProjectID, now); err != nil {
		return nil, err
	}
	return &donation, nil
}

// projectExists is the fast existence probe used before creating a checkout
// intent.
func (s *Service) projectExists(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var project models.Project
	if err := s.DB.WithContext(ctx).Select("project_id").Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, apperr.NotFound("Project not found")
		}
		return false, err
	}
	return true, nil
}

// ListForProject returns a project's donations, newest first.
func (s *Service) ListForProject(ctx context.Context, projectID uuid.UUID) ([]models.Donation, error) {
	var list []models.Donation
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("\"createdAt\" DESC").
		Find(&list).Error
	return list, err
}
