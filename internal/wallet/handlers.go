package wallet

import (
	"strconv"

	"civicfund-backend/internal/middleware"
	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service       *Service
	IntentCreator TopUpIntentCreator
}

// TopUpIntentCreator creates the on-session PaymentIntent for a manual
// wallet top-up; the credit lands via webhook when the payment confirms.
type TopUpIntentCreator interface {
	CreateIntent(amountCents int64, currency string, metadata map[string]string) (*TopUpIntentResult, error)
}

type TopUpIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	actor := middleware.GetSessionUser(c)
	if actor == nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return uuid.Parse(actor.UserID)
}

// GetBalance GET /api/v1/wallet/balance
func (h *Handlers) GetBalance(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	balance, err := h.Service.Balance(c.Context(), userID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Balance retrieved", fiber.Map{"balance_cents": balance}, nil)
}

// GetTransactions GET /api/v1/wallet/transactions?limit=N
func (h *Handlers) GetTransactions(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := h.Service.Transactions(c.Context(), userID, limit)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Transactions retrieved", fiber.Map{"transactions": entries}, fiber.Map{"count": len(entries)})
}

// DebitRequest body for POST /api/v1/wallet/debit.
type DebitRequest struct {
	ProjectID   string `json:"project_id"`
	AmountCents int64  `json:"amount_cents"`
	// AutoRefill opts in to the refill-then-retry flow when the balance
	// falls short.
	AutoRefill bool `json:"auto_refill"`
}

// Debit POST /api/v1/wallet/debit — spend wallet balance on a project.
func (h *Handlers) Debit(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req DebitRequest
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

	var result *DebitResult
	if req.AutoRefill {
		result, err = h.Service.DebitWithAutoRefill(c.Context(), userID, req.AmountCents, projectID)
	} else {
		result, err = h.Service.Debit(c.Context(), userID, req.AmountCents, projectID)
	}
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Wallet debited", fiber.Map{
		"new_balance_cents": result.NewBalanceCents,
		"tx_id":             result.TxID,
	}, nil)
}

// TopUpIntentRequest body for POST /api/v1/wallet/topup-intent.
type TopUpIntentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// TopUpIntent POST /api/v1/wallet/topup-intent
func (h *Handlers) TopUpIntent(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req TopUpIntentRequest
	if err := c.BodyParser(&req); err != nil || req.AmountCents <= 0 {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if h.IntentCreator == nil {
		return response.Error(c, "Stripe not configured", fiber.StatusInternalServerError, nil)
	}
	pi, err := h.IntentCreator.CreateIntent(req.AmountCents, "usd", map[string]string{
		"purpose": "wallet_topup",
		"user_id": userID.String(),
	})
	if err != nil {
		return response.Error(c, "Could not create payment intent", fiber.StatusBadGateway, nil)
	}
	return response.SuccessCreated(c, "Payment intent created", fiber.Map{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
	}, nil)
}

// UpdateAutoRefill PUT /api/v1/wallet/auto-refill
func (h *Handlers) UpdateAutoRefill(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in AutoRefillInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if _, err := h.Service.UpdateAutoRefill(c.Context(), userID, in); err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Auto-refill policy updated", fiber.Map{
		"enabled":                     in.Enabled,
		"refill_amount_cents":         in.RefillAmountCents,
		"low_balance_threshold_cents": in.LowBalanceThresholdCents,
	}, nil)
}
