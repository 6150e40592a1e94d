package audit

import (
	"context"
	"encoding/json"

	"civicfund-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder appends to the audit trail. Failures to record are logged, never
// propagated: an audit hiccup must not roll back the action it describes.
type Recorder struct {
	DB *gorm.DB
}

// Record appends one audit entry.
func (r *Recorder) Record(ctx context.Context, actorID uuid.UUID, action, targetType, targetID, outcome string, details map[string]interface{}) {
	var raw datatypes.JSON
	if details != nil {
		b, err := json.Marshal(details)
		if err == nil {
			raw = datatypes.JSON(b)
		}
	}
	entry := models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Outcome:    outcome,
		Details:    raw,
	}
	if err := r.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("action", action).Str("target_id", targetID).Msg("audit record failed")
	}
}

// List returns the most recent entries, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditLog
	err := r.DB.WithContext(ctx).Order("\"createdAt\" DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
