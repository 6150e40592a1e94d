package billing

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"
)

// RealSubscriptionFetcher resolves a subscription id against the live Stripe
// API. Used when an invoice event carries only the id, not the embedded
// subscription object.
type RealSubscriptionFetcher struct{}

func (RealSubscriptionFetcher) FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}

	state := &SubscriptionState{
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		state.CurrentPeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		state.AmountCents = price.UnitAmount
		state.Currency = string(price.Currency)
		if price.Recurring != nil {
			state.Interval = string(price.Recurring.Interval)
		}
	}
	return state, nil
}
