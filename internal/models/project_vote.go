package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VoteYes = "yes"
	VoteNo  = "no"
)

// ProjectVote is one member's ballot. The composite unique index is the
// duplicate-vote gate: two concurrent casts race on the insert and the
// loser surfaces as gorm.ErrDuplicatedKey, not on an application check.
// Rows are immutable after creation.
type ProjectVote struct {
	VoteID    uuid.UUID `gorm:"column:vote_id;type:uuid;primaryKey" json:"vote_id"`
	ProjectID uuid.UUID `gorm:"column:project_id;type:uuid;not null;uniqueIndex:idx_project_votes_project_user" json:"project_id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_project_votes_project_user" json:"user_id"`
	Zip       string    `gorm:"column:zip;not null" json:"zip"`
	Value     string    `gorm:"column:value;type:varchar(3);not null" json:"value"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (ProjectVote) TableName() string {
	return "project_votes"
}

func (v *ProjectVote) BeforeCreate(tx *gorm.DB) error {
	if v.VoteID == uuid.Nil {
		v.VoteID = uuid.New()
	}
	return nil
}
