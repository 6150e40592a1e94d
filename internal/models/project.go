package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project lifecycle statuses. Transitions are owned by internal/projects;
// nothing else writes Status.
const (
	ProjectStatusDraft     = "draft"
	ProjectStatusVoting    = "voting"
	ProjectStatusFunding   = "funding"
	ProjectStatusBuild     = "build"
	ProjectStatusCompleted = "completed"
	ProjectStatusArchived  = "archived"
)

// Project is a proposed community initiative. VotesYes/VotesNo and
// TotalRaisedCents are only ever moved by atomic increments (gorm.Expr),
// never by read-modify-write of the row.
type Project struct {
	ProjectID uuid.UUID `gorm:"column:project_id;type:uuid;primaryKey" json:"project_id"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Slug      *string   `gorm:"column:slug;uniqueIndex" json:"slug"`
	Category  string    `gorm:"column:category" json:"category"`
	Zip       string    `gorm:"column:zip;not null" json:"zip"`

	FundingGoalCents int64 `gorm:"column:funding_goal_cents;not null" json:"funding_goal_cents"`
	VoteGoal         int64 `gorm:"column:vote_goal;not null;default:0" json:"vote_goal"`

	VotesYes         int64 `gorm:"column:votes_yes;not null;default:0" json:"votes_yes"`
	VotesNo          int64 `gorm:"column:votes_no;not null;default:0" json:"votes_no"`
	TotalRaisedCents int64 `gorm:"column:total_raised_cents;not null;default:0" json:"total_raised_cents"`

	Status string `gorm:"column:status;not null;default:voting" json:"status"`

	// Set once when both thresholds are first satisfied; BuildReadyNotify is
	// the flag a downstream notifier consumes, BuildReadyAt is the debounce
	// stamp that keeps the flag from being re-set after an admin clears it.
	BuildReadyNotify bool       `gorm:"column:build_ready_notify;not null;default:false" json:"build_ready_notify"`
	BuildReadyAt     *time.Time `gorm:"column:build_ready_at" json:"build_ready_at"`

	BuildStartedAt *time.Time `gorm:"column:build_started_at" json:"build_started_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at"`
	GrandOpeningAt *time.Time `gorm:"column:grand_opening_at" json:"grand_opening_at"`

	CreatorID uuid.UUID `gorm:"column:creator_id;type:uuid;not null" json:"creator_id"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ProjectID == uuid.Nil {
		p.ProjectID = uuid.New()
	}
	return nil
}

// VoteGoalMet and FundingGoalMet are the two independent gates for the
// funding -> build transition.
func (p *Project) VoteGoalMet() bool {
	return p.VotesYes >= p.VoteGoal
}

func (p *Project) FundingGoalMet() bool {
	return p.TotalRaisedCents >= p.FundingGoalCents
}
