package votes

import (
	"context"
	"time"

	"civicfund-backend/internal/constants"
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

// Result is the read model returned after a successful cast.
type Result struct {
	VotesYes int64  `json:"votes_yes"`
	VotesNo  int64  `json:"votes_no"`
	Status   string `json:"status"`
}

// CastVote records one ballot. Gates run in order — project exists, project
// is in voting, residency, membership, duplicate — each with its own error
// kind. The duplicate gate is the storage-layer unique index: two concurrent
// casts race on the insert and the loser gets Conflict, there is no
// read-then-write check to lose.
func (s *Service) CastVote(ctx context.Context, userID, projectID uuid.UUID, value string) (*Result, error) {
	if value != models.VoteYes && value != models.VoteNo {
		return nil, apperr.PreconditionFailed("", "Vote value must be yes or no", nil)
	}

	var voter models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&voter).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Unauthorized("Unauthorized")
		}
		return nil, err
	}

	var result Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Where("project_id = ?", projectID).First(&project).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("Project not found")
			}
			return err
		}
		if project.Status != models.ProjectStatusVoting {
			return apperr.PreconditionFailed(apperr.ReasonStatusMismatch,
				"Project is not open for voting",
				map[string]interface{}{"status": project.Status})
		}
		if voter.Zip != project.Zip {
			return apperr.Forbidden("Voting is limited to residents of the project's ZIP code")
		}
		if !voter.IsActiveMember(time.Now()) && !constants.IsAdmin(voter.Role) {
			return apperr.Forbidden("An active monthly membership is required to vote")
		}

		vote := models.ProjectVote{
			ProjectID: projectID,
			UserID:    userID,
			Zip:       voter.Zip,
			Value:     value,
		}
		if err := tx.Create(&vote).Error; err != nil {
			if database.IsDuplicate(err) {
				return apperr.Conflict("You have already voted on this project")
			}
			return err
		}

		counter := "votes_yes"
		if value == models.VoteNo {
			counter = "votes_no"
		}
		if err := tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			UpdateColumn(counter, gorm.Expr(counter+" + ?", 1)).Error; err != nil {
			return err
		}

		if err := projects.ThresholdCheckTx(tx, projectID, time.Now()); err != nil {
			return err
		}

		var updated models.Project
		if err := tx.Where("project_id = ?", projectID).First(&updated).Error; err != nil {
			return err
		}
		result = Result{VotesYes: updated.VotesYes, VotesNo: updated.VotesNo, Status: updated.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
