package donations

import (
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeIntentResult is what the checkout handler returns to the client.
type StripeIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// StripeIntentCreator creates the PaymentIntent for a donation checkout.
// The webhook records the donation when the intent's checkout completes.
type StripeIntentCreator interface {
	CreateIntent(amountCents int64, currency string, metadata map[string]string) (*StripeIntentResult, error)
}

// RealStripeIntentCreator calls Stripe with the account secret key.
type RealStripeIntentCreator struct {
	SecretKey string
}

func (r *RealStripeIntentCreator) CreateIntent(amountCents int64, currency string, metadata map[string]string) (*StripeIntentResult, error) {
	stripe.Key = r.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &StripeIntentResult{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
