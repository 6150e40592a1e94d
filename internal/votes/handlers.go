package votes

import (
	"civicfund-backend/internal/middleware"
	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// CastVoteRequest body for POST /api/v1/votes/cast-vote.
type CastVoteRequest struct {
	ProjectID string `json:"project_id"`
	Value     string `json:"value"`
}

// CastVote POST /api/v1/votes/cast-vote
func (h *Handlers) CastVote(c *fiber.Ctx) error {
	actor := middleware.GetSessionUser(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	userID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for user_id", fiber.StatusBadRequest, nil)
	}

	var req CastVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if req.ProjectID == "" || req.Value == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for project_id", fiber.StatusBadRequest, nil)
	}

	result, err := h.Service.CastVote(c.Context(), userID, projectID, req.Value)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.SuccessCreated(c, "Vote recorded", fiber.Map{
		"votes_yes": result.VotesYes,
		"votes_no":  result.VotesNo,
		"status":    result.Status,
	}, nil)
}
