package billing

import (
	"context"
	"time"

	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Statuses that clear the snapshot instead of being stored: stale billing
// state must not keep granting membership.
func isClearedStatus(status string) bool {
	switch status {
	case "canceled", "unpaid", "incomplete_expired":
		return true
	}
	return false
}

// SubscriptionFetcher pulls the current subscription state from the
// processor, for invoice events that reference a subscription by id only.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
}

// Reconciler folds billing events into the owning user's subscription
// snapshot. It never touches wallet balance; wallet top-ups go through the
// explicit checkout-completion path.
type Reconciler struct {
	DB      *gorm.DB
	Fetcher SubscriptionFetcher
}

// ApplySubscription upserts the snapshot onto the owning user. Events older
// than the stored snapshot are skipped, so at-least-once, out-of-order
// delivery can never regress a newer state.
func (r *Reconciler) ApplySubscription(ctx context.Context, state SubscriptionState, eventTime time.Time) error {
	user, err := r.resolveUser(ctx, state.CustomerID, state.Metadata["user_id"])
	if err != nil {
		return err
	}

	if user.SubscriptionSyncedAt != nil && eventTime.Before(*user.SubscriptionSyncedAt) {
		log.Debug().Str("user_id", user.UserID.String()).
			Str("subscription_id", state.SubscriptionID).
			Time("event_time", eventTime).
			Msg("skipping stale subscription event")
		return nil
	}

	updates := map[string]interface{}{
		"stripe_customer_id":     state.CustomerID,
		"subscription_synced_at": eventTime,
	}
	if isClearedStatus(state.Status) {
		updates["stripe_subscription_id"] = nil
		updates["subscription_status"] = nil
		updates["subscription_interval"] = nil
		updates["subscription_amount_cents"] = nil
		updates["subscription_currency"] = nil
		updates["current_period_end"] = nil
		updates["cancel_at_period_end"] = false
	} else {
		updates["stripe_subscription_id"] = state.SubscriptionID
		updates["subscription_status"] = state.Status
		updates["subscription_interval"] = state.Interval
		updates["subscription_amount_cents"] = state.AmountCents
		updates["subscription_currency"] = state.Currency
		updates["current_period_end"] = state.CurrentPeriodEnd
		updates["cancel_at_period_end"] = state.CancelAtPeriodEnd
	}

	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", user.UserID).
		Updates(updates).Error
}

// ApplyInvoicePaid stamps the last-paid timestamp and refreshes the
// snapshot from the associated subscription, since invoice and subscription
// events can arrive in either order.
func (r *Reconciler) ApplyInvoicePaid(ctx context.Context, inv invoiceObject, eventTime time.Time) error {
	user, err := r.resolveUser(ctx, inv.Customer, inv.Metadata["user_id"])
	if err != nil {
		return err
	}

	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", user.UserID).
		Update("last_paid_at", eventTime).Error; err != nil {
		return err
	}

	subID, embedded := inv.subscriptionRef()
	if embedded != nil {
		if embedded.CustomerID == "" {
			embedded.CustomerID = inv.Customer
		}
		return r.ApplySubscription(ctx, *embedded, eventTime)
	}
	if subID != "" && r.Fetcher != nil {
		state, ferr := r.Fetcher.FetchSubscription(ctx, subID)
		if ferr != nil {
			// Last-paid stamp stands; the next subscription event will
			// bring the snapshot current.
			log.Warn().Err(ferr).Str("subscription_id", subID).Msg("subscription fetch after invoice.paid failed")
			return nil
		}
		if state.CustomerID == "" {
			state.CustomerID = inv.Customer
		}
		return r.ApplySubscription(ctx, *state, eventTime)
	}
	return nil
}

// LinkCustomer stores the processor customer id on the user after a
// first-time subscription checkout, so later events resolve without the
// metadata fallback.
func (r *Reconciler) LinkCustomer(ctx context.Context, metaUserID, customerID string) error {
	if metaUserID == "" || customerID == "" {
		return apperr.Unresolvable("checkout session carries no linkable user")
	}
	userID, err := uuid.Parse(metaUserID)
	if err != nil {
		return apperr.Unresolvable("checkout session user_id is not a valid id")
	}
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("stripe_customer_id", customerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Unresolvable("checkout session user not found")
	}
	return nil
}

// resolveUser finds the snapshot owner by stored customer id, falling back
// to the user id carried in event metadata for first-time checkouts (which
// also links the customer id for next time).
func (r *Reconciler) resolveUser(ctx context.Context, customerID, metaUserID string) (*models.User, error) {
	var user models.User
	if customerID != "" {
		err := r.DB.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	if metaUserID != "" {
		userID, perr := uuid.Parse(metaUserID)
		if perr == nil {
			err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
			if err == nil {
				if customerID != "" && (user.StripeCustomerID == nil || *user.StripeCustomerID != customerID) {
					_ = r.DB.WithContext(ctx).Model(&models.User{}).
						Where("user_id = ?", user.UserID).
						Update("stripe_customer_id", customerID).Error
				}
				return &user, nil
			}
			if err != gorm.ErrRecordNotFound {
				return nil, err
			}
		}
	}

	return nil, apperr.Unresolvable("no user linked to billing event")
}
