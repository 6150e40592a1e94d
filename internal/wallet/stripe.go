package wallet

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeCharger performs the off-session charge backing an auto-refill.
// Returns the payment intent id, which doubles as the credit's idempotency
// reference.
type StripeCharger interface {
	Charge(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string, metadata map[string]string) (string, error)
}

// RealStripeCharger confirms an off-session PaymentIntent against the saved
// payment method. The context bound set by the caller is the charge timeout.
type RealStripeCharger struct {
	SecretKey string
}

func (r *RealStripeCharger) Charge(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string, metadata map[string]string) (string, error) {
	stripe.Key = r.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(currency),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// RealTopUpIntentCreator creates the on-session intent for manual top-ups.
type RealTopUpIntentCreator struct {
	SecretKey string
}

func (r *RealTopUpIntentCreator) CreateIntent(amountCents int64, currency string, metadata map[string]string) (*TopUpIntentResult, error) {
	stripe.Key = r.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		// The card is kept for off-session auto-refill charges later.
		SetupFutureUsage: stripe.String("off_session"),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &TopUpIntentResult{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
