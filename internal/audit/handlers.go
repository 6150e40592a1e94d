package audit

import (
	"strconv"

	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Recorder *Recorder
}

// GetAuditTrail GET /api/v1/audit/get-audit-trail?limit=N — admin only (route permission).
func (h *Handlers) GetAuditTrail(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	entries, err := h.Recorder.List(c.Context(), limit)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Audit trail retrieved", fiber.Map{"entries": entries}, fiber.Map{"count": len(entries)})
}
