package projects

import (
	"context"
	"time"

	"civicfund-backend/internal/audit"
	"civicfund-backend/internal/constants"
	"civicfund-backend/internal/database"
	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"
	"civicfund-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Transition actions accepted by Transition.
const (
	ActionStartBuild = "start_build"
	ActionComplete   = "complete"
	ActionArchive    = "archive"
)

type Service struct {
	DB    *gorm.DB
	Audit *audit.Recorder
}

// CreateInput for a new project proposal.
type CreateInput struct {
	Title            string  `json:"title"`
	Slug             *string `json:"slug"`
	Category         string  `json:"category"`
	Zip              string  `json:"zip"`
	FundingGoalCents int64   `json:"funding_goal_cents"`
	VoteGoal         int64   `json:"vote_goal"`
	Draft            bool    `json:"draft"`
}

// TransitionOpts carries optional parameters for a transition.
type TransitionOpts struct {
	GrandOpeningAt *time.Time
}

// Create submits a new project. Submission is gated on an active monthly
// membership (admins bypass), the same derivation the vote ledger uses.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, in CreateInput) (*models.Project, error) {
	var creator models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", creatorID).First(&creator).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Unauthorized("Unauthorized")
		}
		return nil, err
	}
	if !creator.IsActiveMember(time.Now()) && !constants.IsAdmin(creator.Role) {
		return nil, apperr.Forbidden("An active monthly membership is required to submit a project")
	}
	if in.Title == "" || !validation.IsValidZip(in.Zip) || in.FundingGoalCents < 0 || in.VoteGoal < 0 {
		return nil, apperr.PreconditionFailed("", "Invalid project fields", nil)
	}

	status := models.ProjectStatusVoting
	if in.Draft {
		status = models.ProjectStatusDraft
	}
	project := models.Project{
		Title:            in.Title,
		Slug:             in.Slug,
		Category:         in.Category,
		Zip:              in.Zip,
		FundingGoalCents: in.FundingGoalCents,
		VoteGoal:         in.VoteGoal,
		Status:           status,
		CreatorID:        creatorID,
	}
	if err := s.DB.WithContext(ctx).Create(&project).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, apperr.Conflict("A project with this slug already exists")
		}
		return nil, err
	}
	return &project, nil
}

// Get returns one project by id.
func (s *Service) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, err
	}
	return &project, nil
}

// List returns all non-archived projects, newest first.
func (s *Service) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := s.DB.WithContext(ctx).
		Where("status <> ?", models.ProjectStatusArchived).
		Order("\"createdAt\" DESC").
		Find(&projects).Error
	return projects, err
}

// Transition applies an administrator-invoked lifecycle transition. Guards
// are checked inside the transaction against fresh counters, and the attempt
// is written to the audit trail whatever the outcome.
func (s *Service) Transition(ctx context.Context, adminID, projectID uuid.UUID, action string, opts TransitionOpts) (*models.Project, error) {
	var project models.Project

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", projectID).First(&project).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("Project not found")
			}
			return err
		}

		now := time.Now()
		switch action {
		case ActionStartBuild:
			return startBuild(tx, &project, now)
		case ActionComplete:
			return complete(tx, &project, now, opts.GrandOpeningAt)
		case ActionArchive:
			return archive(tx, &project)
		default:
			return apperr.PreconditionFailed("", "Unknown transition action", map[string]interface{}{"action": action})
		}
	})

	outcome := models.AuditOutcomeSuccess
	details := map[string]interface{}{"action": action}
	if err != nil {
		outcome = models.AuditOutcomeFailure
		details["error"] = err.Error()
		if e, ok := apperr.As(err); ok && e.Reason != "" {
			details["reason"] = e.Reason
		}
	} else {
		details["status"] = project.Status
	}
	if s.Audit != nil {
		s.Audit.Record(ctx, adminID, "project_transition", "project", projectID.String(), outcome, details)
	}

	if err != nil {
		return nil, err
	}
	return &project, nil
}

// startBuild: funding -> build, gated on both thresholds. Guard order is
// status, then votes, then funding, so the caller learns the first unmet gate.
func startBuild(tx *gorm.DB, p *models.Project, now time.Time) error {
	if p.Status != models.ProjectStatusFunding {
		return apperr.PreconditionFailed(apperr.ReasonStatusMismatch,
			"Project is not in the funding stage",
			map[string]interface{}{"status": p.Status})
	}
	if !p.VoteGoalMet() {
		return apperr.PreconditionFailed(apperr.ReasonVoteShortfall,
			"Vote goal not reached",
			map[string]interface{}{"vote_goal": p.VoteGoal, "votes_yes": p.VotesYes})
	}
	if !p.FundingGoalMet() {
		return apperr.PreconditionFailed(apperr.ReasonFundingShortfall,
			"Funding goal not reached",
			map[string]interface{}{"funding_goal_cents": p.FundingGoalCents, "total_raised_cents": p.TotalRaisedCents})
	}
	p.Status = models.ProjectStatusBuild
	p.BuildStartedAt = &now
	// Starting the build is the administrator action that clears the
	// notification flag; BuildReadyAt stays set so it is never re-raised.
	p.BuildReadyNotify = false
	return tx.Model(p).Select("status", "build_started_at", "build_ready_notify").Updates(p).Error
}

// complete: build -> completed, optional grand-opening date (defaults to now).
func complete(tx *gorm.DB, p *models.Project, now time.Time, grandOpeningAt *time.Time) error {
	if p.Status != models.ProjectStatusBuild {
		return apperr.PreconditionFailed(apperr.ReasonStatusMismatch,
			"Project is not in the build stage",
			map[string]interface{}{"status": p.Status})
	}
	opening := now
	if grandOpeningAt != nil {
		opening = *grandOpeningAt
	}
	p.Status = models.ProjectStatusCompleted
	p.CompletedAt = &now
	p.GrandOpeningAt = &opening
	return tx.Model(p).Select("status", "completed_at", "grand_opening_at").Updates(p).Error
}

// archive: administrative override from any non-terminal state, no
// threshold checks (soft-delete semantics).
func archive(tx *gorm.DB, p *models.Project) error {
	if p.Status == models.ProjectStatusCompleted || p.Status == models.ProjectStatusArchived {
		return apperr.PreconditionFailed(apperr.ReasonStatusMismatch,
			"Project is already in a terminal state",
			map[string]interface{}{"status": p.Status})
	}
	p.Status = models.ProjectStatusArchived
	return tx.Model(p).Select("status").Updates(p).Error
}

// ThresholdCheckTx re-evaluates the two accumulating thresholds after a vote
// or donation, inside the caller's transaction:
//   - voting -> funding is automatic once the vote goal is met (not gated on
//     funding);
//   - the one-shot build-ready flag is raised the first time both thresholds
//     hold while the project is still in voting/funding.
func ThresholdCheckTx(tx *gorm.DB, projectID uuid.UUID, now time.Time) error {
	var p models.Project
	if err := tx.Where("project_id = ?", projectID).First(&p).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{}

	if p.Status == models.ProjectStatusVoting && p.VoteGoalMet() {
		p.Status = models.ProjectStatusFunding
		updates["status"] = models.ProjectStatusFunding
	}

	inFlight := p.Status == models.ProjectStatusVoting || p.Status == models.ProjectStatusFunding
	if inFlight && p.VoteGoalMet() && p.FundingGoalMet() && p.BuildReadyAt == nil {
		updates["build_ready_notify"] = true
		updates["build_ready_at"] = now
		log.Info().Str("project_id", projectID.String()).Msg("project ready for build")
	}

	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&models.Project{}).Where("project_id = ?", projectID).Updates(updates).Error
}
