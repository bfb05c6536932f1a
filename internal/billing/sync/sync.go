// Package sync keeps the persisted team subscription consistent with the
// billing provider. Delivery is at-least-once and not strictly ordered, so
// every handler is idempotent under re-application of the same event;
// last-write-wins by arrival order is accepted for genuinely conflicting
// deliveries.
package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/store"
)

// Fetcher is the subset of the billing client the synchronizer needs for
// checkout completion and manual reconciliation.
type Fetcher interface {
	GetSubscription(id string) (*stripe.Subscription, error)
	ListSubscriptions(customerID string) ([]*stripe.Subscription, error)
}

// Notifier receives team-scoped change notifications after successful writes.
type Notifier interface {
	NotifyTeam(teamID int64, entity, action string)
}

// Synchronizer applies trusted billing events to the subscription store.
// Signature verification happens upstream; this type only ever sees parsed
// events. Write failures are returned loudly so the webhook endpoint can
// answer non-2xx and the provider re-delivers.
type Synchronizer struct {
	catalog  *plan.Catalog
	subs     *store.SubscriptionStore
	fetcher  Fetcher
	notifier Notifier
	logger   *slog.Logger
}

func NewSynchronizer(catalog *plan.Catalog, subs *store.SubscriptionStore, fetcher Fetcher, notifier Notifier, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		catalog:  catalog,
		subs:     subs,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
	}
}

// ApplyEvent dispatches a verified billing event. Unrecognized event types
// are acknowledged without action.
func (s *Synchronizer) ApplyEvent(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionEvent(event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePayment(event, "succeeded")
	case "invoice.payment_failed":
		return s.handleInvoicePayment(event, "failed")
	}
	return nil
}

func (s *Synchronizer) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		s.logger.Warn("checkout session completed without subscription", "session", sess.ID)
		return nil
	}

	// The session payload carries only the subscription id; fetch the full
	// object and reuse the update path.
	sub, err := s.fetcher.GetSubscription(sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("fetch subscription for checkout: %w", err)
	}
	return s.ApplySubscription(sub)
}

func (s *Synchronizer) handleSubscriptionEvent(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	return s.ApplySubscription(&sub)
}

// ApplySubscription upserts the stored row for the subscription's team in a
// single statement. Re-applying identical provider state produces an
// identical row.
func (s *Synchronizer) ApplySubscription(sub *stripe.Subscription) error {
	teamID, err := s.resolveTeamID(sub)
	if err != nil {
		return err
	}

	row := &model.TeamSubscription{
		TeamID:               teamID,
		StripeSubscriptionID: sub.ID,
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		TrialStart:           epochToTime(sub.TrialStart),
		TrialEnd:             epochToTime(sub.TrialEnd),
		CanceledAt:           epochToTime(sub.CanceledAt),
	}
	if sub.Customer != nil {
		row.StripeCustomerID = sub.Customer.ID
	}

	// Plan resolution priority: the live price id wins over metadata,
	// because portal-initiated plan changes swap the price without
	// touching metadata. Metadata is the fallback only when the price is
	// not modeled yet.
	var priceID string
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		row.CurrentPeriodStart = epochToTime(item.CurrentPeriodStart)
		row.CurrentPeriodEnd = epochToTime(item.CurrentPeriodEnd)
		if item.Price != nil {
			priceID = item.Price.ID
			if item.Price.Recurring != nil {
				row.BillingInterval = string(item.Price.Recurring.Interval)
			}
		}
	}
	if p := s.catalog.ResolveByPriceID(priceID); p != nil {
		row.PlanID = &p.ID
	} else if metaPlan := sub.Metadata["plan_id"]; metaPlan != "" {
		if p, err := s.catalog.Get(metaPlan); err == nil {
			row.PlanID = &p.ID
		} else {
			s.logger.Warn("subscription metadata names unknown plan",
				"subscription", sub.ID, "plan_id", metaPlan)
		}
	}

	if _, err := s.subs.Upsert(row); err != nil {
		return fmt.Errorf("persist subscription %s: %w", sub.ID, err)
	}

	s.logger.Info("subscription synchronized",
		"team_id", teamID, "subscription", sub.ID, "status", row.Status)
	s.notify(teamID, "subscription", "updated")
	return nil
}

func (s *Synchronizer) handleSubscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	canceledAt := time.Now().UTC()
	if t := epochToTime(sub.CanceledAt); t != nil {
		canceledAt = *t
	}
	if err := s.subs.MarkCanceled(sub.ID, canceledAt); err != nil {
		return err
	}

	if row, err := s.subs.GetByStripeID(sub.ID); err == nil && row != nil {
		s.notify(row.TeamID, "subscription", "canceled")
	}
	return nil
}

func (s *Synchronizer) handleInvoicePayment(event stripe.Event, status string) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		return nil
	}

	row, err := s.subs.GetByStripeID(subID)
	if err != nil {
		return fmt.Errorf("look up subscription %s for invoice: %w", subID, err)
	}
	if row == nil {
		// Not a subscription we track; ack so the provider stops retrying.
		s.logger.Warn("invoice for unknown subscription", "subscription", subID, "invoice", invoice.ID)
		return nil
	}

	amount := invoice.AmountPaid
	if status == "failed" {
		amount = invoice.AmountDue
	}
	if _, err := s.subs.AppendPayment(row.TeamID, invoice.ID, amount, string(invoice.Currency), status); err != nil {
		return err
	}

	if status == "failed" {
		if err := s.subs.UpdateStatusByStripeID(subID, "past_due"); err != nil {
			return err
		}
		s.notify(row.TeamID, "subscription", "past_due")
	}
	return nil
}

// SyncTeam is the operator-triggered reconciliation path: fetch the team's
// current subscription state directly from the provider by stored customer
// id and re-apply it through the normal update path. Recovers from missed
// webhooks.
func (s *Synchronizer) SyncTeam(customerID string) (int, error) {
	subs, err := s.fetcher.ListSubscriptions(customerID)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, sub := range subs {
		if err := s.ApplySubscription(sub); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (s *Synchronizer) resolveTeamID(sub *stripe.Subscription) (int64, error) {
	if raw := sub.Metadata["team_id"]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && id > 0 {
			return id, nil
		}
		s.logger.Warn("subscription metadata has malformed team_id",
			"subscription", sub.ID, "team_id", raw)
	}

	// Portal-created or replacement subscriptions may lack metadata; fall
	// back to the team already associated with this subscription id.
	row, err := s.subs.GetByStripeID(sub.ID)
	if err != nil {
		return 0, fmt.Errorf("resolve team for subscription %s: %w", sub.ID, err)
	}
	if row == nil {
		return 0, fmt.Errorf("subscription %s cannot be attributed to a team", sub.ID)
	}
	return row.TeamID, nil
}

func (s *Synchronizer) notify(teamID int64, entity, action string) {
	if s.notifier != nil {
		s.notifier.NotifyTeam(teamID, entity, action)
	}
}

// epochToTime converts provider epoch seconds; zero and negative values map
// to nil.
func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func subscriptionIDFromInvoice(invoice stripe.Invoice) string {
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}
