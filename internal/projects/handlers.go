package projects

import (
	"time"

	"civicfund-backend/internal/middleware"
	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// CreateProject POST /api/v1/projects/create-project
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	actor := middleware.GetSessionUser(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	actorID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for user_id", fiber.StatusBadRequest, nil)
	}

	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if in.Title == "" || in.Zip == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	project, err := h.Service.Create(c.Context(), actorID, in)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.SuccessCreated(c, "Project created", fiber.Map{"project": project}, nil)
}

// GetProject GET /api/v1/projects/get-project/:project_id
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("project_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for project_id", fiber.StatusBadRequest, nil)
	}
	project, err := h.Service.Get(c.Context(), projectID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Project retrieved", fiber.Map{"project": project}, nil)
}

// GetAllProjects GET /api/v1/projects/get-all-projects
func (h *Handlers) GetAllProjects(c *fiber.Ctx) error {
	projects, err := h.Service.List(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Projects retrieved", fiber.Map{"projects": projects}, fiber.Map{"count": len(projects)})
}

// TransitionRequest body for POST /api/v1/projects/transition.
type TransitionRequest struct {
	ProjectID      string     `json:"project_id"`
	Action         string     `json:"action"`
	GrandOpeningAt *time.Time `json:"grand_opening_at"`
}

// Transition POST /api/v1/projects/transition — admin only (route permission).
func (h *Handlers) Transition(c *fiber.Ctx) error {
	actor := middleware.GetSessionUser(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	adminID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for user_id", fiber.StatusBadRequest, nil)
	}

	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for project_id", fiber.StatusBadRequest, nil)
	}
	if req.Action == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	project, err := h.Service.Transition(c.Context(), adminID, projectID, req.Action, TransitionOpts{
		GrandOpeningAt: req.GrandOpeningAt,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Project transitioned", fiber.Map{
		"project_id": project.ProjectID,
		"status":     project.Status,
	}, nil)
}
