package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"civicfund-backend/internal/database"
	"civicfund-backend/internal/donations"
	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"
	"civicfund-backend/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookHandler ingests Stripe billing events: subscription lifecycle and
// invoice events go to the Reconciler, checkout completions to the wallet
// credit or donation record. Mounted before the session middleware so the
// raw body survives for signature verification.
type WebhookHandler struct {
	DB            *gorm.DB
	WebhookSecret string
	Reconciler    *Reconciler
	Wallet        *wallet.Service
	Donations     *donations.Service
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// HandleWebhook POST /api/v1/stripe/webhook — raw body, signature
// verification, event dedupe, then dispatch. Unresolvable events return 200
// so Stripe does not retry what will never succeed; signature and parse
// failures return 400; transient dispatch failures return 500 with the
// dedupe row released so the redelivery is processed.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(400).SendString("Webhook Error: empty body")
	}

	if err := verifyWebhookSignature(rawBody, sig, wh.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Stripe webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	// Global at-least-once dedupe: the unique event id either inserts or
	// this delivery is a replay.
	record := models.BillingEvent{
		EventID:    event.ID,
		Type:       event.Type,
		RawPayload: datatypes.JSON(rawBody),
	}
	if err := wh.DB.Create(&record).Error; err != nil {
		if database.IsDuplicate(err) {
			return c.Status(200).SendString("ok")
		}
		log.Error().Err(err).Str("event_id", event.ID).Msg("billing event store failed")
		return c.Status(500).SendString("Webhook Error: storage")
	}

	eventTime := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		eventTime = time.Now().UTC()
	}

	if err := wh.dispatch(c, event, eventTime); err != nil {
		if apperr.IsKind(err, apperr.KindUnresolvable) {
			// Dropped, not retried forever: log and acknowledge.
			log.Warn().Str("event_id", event.ID).Str("type", event.Type).Err(err).Msg("billing event unresolvable, dropping")
			return c.Status(200).SendString("ok")
		}
		// Transient failure: release the dedupe row so the redelivery is
		// processed instead of acknowledged as a replay, and return 500 so
		// Stripe redelivers.
		if delErr := wh.DB.Where("event_id = ?", event.ID).Delete(&models.BillingEvent{}).Error; delErr != nil {
			log.Error().Err(delErr).Str("event_id", event.ID).Msg("billing event dedupe release failed")
		}
		log.Error().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("billing event processing failed")
		return c.Status(500).SendString("Webhook Error: processing")
	}

	return c.Status(200).SendString("ok")
}

func (wh *WebhookHandler) dispatch(c *fiber.Ctx, event stripeEvent, eventTime time.Time) error {
	ctx := c.Context()

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return err
		}
		state := sub.normalize()
		if event.Type == "customer.subscription.deleted" {
			state.Status = "canceled"
		}
		return wh.Reconciler.ApplySubscription(ctx, state, eventTime)

	case "invoice.paid":
		var inv invoiceObject
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return err
		}
		return wh.Reconciler.ApplyInvoicePaid(ctx, inv, eventTime)

	case "checkout.session.completed":
		var session checkoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return err
		}
		return wh.handleCheckoutCompleted(c, session)
	}

	// Unhandled event types are acknowledged untouched.
	return nil
}

// handleCheckoutCompleted routes a completed checkout to wallet credit,
// donation record, or customer linking, keyed on the session metadata the
// intent endpoints stamped at creation.
func (wh *WebhookHandler) handleCheckoutCompleted(c *fiber.Ctx, session checkoutSessionObject) error {
	ctx := c.Context()

	if session.Mode == "subscription" {
		return wh.Reconciler.LinkCustomer(ctx, session.Metadata["user_id"], session.Customer)
	}

	switch session.Metadata["purpose"] {
	case "wallet_topup":
		userID, err := uuid.Parse(session.Metadata["user_id"])
		if err != nil {
			return apperr.Unresolvable("wallet top-up session carries no linkable user")
		}
		if session.AmountTotal <= 0 {
			return nil
		}
		_, err = wh.Wallet.Credit(ctx, userID, session.AmountTotal, session.ID, map[string]interface{}{
			"reason": "wallet_topup",
		})
		if apperr.IsKind(err, apperr.KindConflict) {
			return nil // already credited on an earlier delivery
		}
		if err != nil {
			return err
		}
		wh.maybeSavePaymentMethod(ctx, userID, session)
		return nil

	case "donation":
		projectID, err := uuid.Parse(session.Metadata["project_id"])
		if err != nil {
			return apperr.Unresolvable("donation session carries no project")
		}
		var userID *uuid.UUID
		if id, perr := uuid.Parse(session.Metadata["user_id"]); perr == nil {
			userID = &id
		}
		if session.AmountTotal <= 0 {
			return nil
		}
		_, err = wh.Donations.Record(ctx, donations.RecordInput{
			Source:         models.DonationSourceStripe,
			IdempotencyKey: session.ID,
			ProjectID:      projectID,
			UserID:         userID,
			AmountCents:    session.AmountTotal,
			Currency:       session.Currency,
			Kind:           models.DonationKindOneTime,
		})
		if apperr.IsKind(err, apperr.KindConflict) {
			return nil // already recorded on an earlier delivery
		}
		return err
	}

	return nil
}

// maybeSavePaymentMethod keeps the card from an expanded payment intent for
// future off-session auto-refill charges. Best effort.
func (wh *WebhookHandler) maybeSavePaymentMethod(ctx context.Context, userID uuid.UUID, session checkoutSessionObject) {
	pmID := session.paymentMethodID()
	if pmID == "" {
		return
	}
	updates := map[string]interface{}{"saved_payment_method_id": pmID}
	if session.Customer != "" {
		updates["stripe_customer_id"] = session.Customer
	}
	if err := wh.DB.WithContext(ctx).Model(&models.User{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("saving payment method failed")
	}
}

// verifyWebhookSignature verifies the Stripe-Signature header using the
// webhook secret (t=timestamp, v1=HMAC-SHA256 of "t.payload", 5 minute
// tolerance).
func verifyWebhookSignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(sigHeader, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}

	return errors.New("signature mismatch")
}
