package donations

import (
	"civicfund-backend/internal/middleware"
	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service       *Service
	StripeCreator StripeIntentCreator
}

// CheckoutIntentRequest body for POST /api/v1/donations/checkout-intent.
type CheckoutIntentRequest struct {
	ProjectID   string `json:"project_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CheckoutIntent POST /api/v1/donations/checkout-intent — ONLY creates the
// Stripe PaymentIntent; the donation itself is recorded by the webhook when
// the payment confirms, keyed on the Stripe identifiers.
func (h *Handlers) CheckoutIntent(c *fiber.Ctx) error {
	actor := middleware.GetSessionUser(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req CheckoutIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if req.ProjectID == "" || req.AmountCents <= 0 {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for project_id", fiber.StatusBadRequest, nil)
	}

	// Fail fast when the target does not exist rather than at webhook time.
	if _, err := h.Service.projectExists(c.Context(), projectID); err != nil {
		return response.DomainError(c, err)
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	if h.StripeCreator == nil {
		return response.Error(c, "Stripe not configured", fiber.StatusInternalServerError, nil)
	}
	pi, err := h.StripeCreator.CreateIntent(req.AmountCents, currency, map[string]string{
		"purpose":    "donation",
		"project_id": projectID.String(),
		"user_id":    actor.UserID,
	})
	if err != nil {
		return response.Error(c, "Could not create payment intent", fiber.StatusBadGateway, nil)
	}
	return response.SuccessCreated(c, "Payment intent created", fiber.Map{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
	}, nil)
}

// GetProjectDonations GET /api/v1/donations/get-project-donations/:project_id
func (h *Handlers) GetProjectDonations(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("project_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for project_id", fiber.StatusBadRequest, nil)
	}
	list, err := h.Service.ListForProject(c.Context(), projectID)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Donations retrieved", fiber.Map{"donations": list}, fiber.Map{"count": len(list)})
}
