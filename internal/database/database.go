package database

import (
	"errors"
	"strings"

	"civicfund-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind connection poolers.
// TranslateError is on so uniqueness violations (duplicate vote, duplicate
// idempotency key) surface as gorm.ErrDuplicatedKey instead of driver errors.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// AutoMigrate runs migrations for all ledger collections.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectVote{},
		&models.WalletTransaction{},
		&models.Donation{},
		&models.BillingEvent{},
		&models.AuditLog{},
	)
}

// IsDuplicate reports whether err is a uniqueness-constraint violation.
// The string fallbacks cover drivers opened without TranslateError.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
