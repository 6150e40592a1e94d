package billing

import (
	"encoding/json"
	"time"
)

// SubscriptionState is the normalized snapshot extracted from any of the
// subscription-bearing event shapes. The reconciler only ever sees this.
type SubscriptionState struct {
	SubscriptionID    string
	CustomerID        string
	Status            string
	Interval          string
	AmountCents       int64
	Currency          string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// subscriptionObject tolerates the two field-naming conventions the
// processor has shipped for the same concepts (an API-version split):
// snake_case and camelCase for period-end and the cancel flag, and the
// legacy plan object next to the items/price layout.
type subscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`

	CurrentPeriodEnd      *int64 `json:"current_period_end"`
	CurrentPeriodEndCamel *int64 `json:"currentPeriodEnd"`

	CancelAtPeriodEnd      *bool `json:"cancel_at_period_end"`
	CancelAtPeriodEndCamel *bool `json:"cancelAtPeriodEnd"`

	Plan *struct {
		Interval string `json:"interval"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"plan"`

	Items struct {
		Data []struct {
			Price struct {
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`

	Metadata map[string]string `json:"metadata"`
}

// normalize flattens the payload variants into one snapshot. Fallback order
// is explicit: snake_case first (current API), camelCase second (legacy),
// plan before items for the billing terms.
func (o *subscriptionObject) normalize() SubscriptionState {
	state := SubscriptionState{
		SubscriptionID: o.ID,
		CustomerID:     o.Customer,
		Status:         o.Status,
		Metadata:       o.Metadata,
	}

	periodEnd := o.CurrentPeriodEnd
	if periodEnd == nil {
		periodEnd = o.CurrentPeriodEndCamel
	}
	if periodEnd != nil {
		t := time.Unix(*periodEnd, 0).UTC()
		state.CurrentPeriodEnd = &t
	}

	cancel := o.CancelAtPeriodEnd
	if cancel == nil {
		cancel = o.CancelAtPeriodEndCamel
	}
	if cancel != nil {
		state.CancelAtPeriodEnd = *cancel
	}

	if o.Plan != nil {
		state.Interval = o.Plan.Interval
		state.AmountCents = o.Plan.Amount
		state.Currency = o.Plan.Currency
	} else if len(o.Items.Data) > 0 {
		price := o.Items.Data[0].Price
		state.Interval = price.Recurring.Interval
		state.AmountCents = price.UnitAmount
		state.Currency = price.Currency
	}

	return state
}

// invoiceObject: subscription may arrive as a bare id or as an expanded
// object, depending on how the event was configured.
type invoiceObject struct {
	Customer     string            `json:"customer"`
	Subscription json.RawMessage   `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionRef splits the two encodings: (id, nil) for a bare id,
// ("", state) for an expanded object.
func (o *invoiceObject) subscriptionRef() (string, *SubscriptionState) {
	if len(o.Subscription) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(o.Subscription, &id); err == nil {
		return id, nil
	}
	var sub subscriptionObject
	if err := json.Unmarshal(o.Subscription, &sub); err == nil && sub.ID != "" {
		state := sub.normalize()
		return sub.ID, &state
	}
	return "", nil
}

// checkoutSessionObject carries the fields the webhook needs from
// checkout.session.completed. PaymentIntent may be an id or expanded.
type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Mode          string            `json:"mode"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentIntent json.RawMessage   `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// paymentMethodID digs the saved payment method out of an expanded payment
// intent, for auto-refill enrollment. Empty when only an id was delivered.
func (o *checkoutSessionObject) paymentMethodID() string {
	if len(o.PaymentIntent) == 0 {
		return ""
	}
	var pi struct {
		PaymentMethod json.RawMessage `json:"payment_method"`
	}
	if err := json.Unmarshal(o.PaymentIntent, &pi); err != nil || len(pi.PaymentMethod) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(pi.PaymentMethod, &id); err == nil {
		return id
	}
	var pm struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(pi.PaymentMethod, &pm); err == nil {
		return pm.ID
	}
	return ""
}
