package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aisleworks/aisle/internal/billing/stripe"
	"github.com/aisleworks/aisle/internal/billing/sync"
	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

// maxWebhookBody caps the webhook request body. Stripe events are small;
// anything larger is hostile.
const maxWebhookBody = 65536

type BillingHandler struct {
	teamStore    *store.TeamStore
	subStore     *store.SubscriptionStore
	userStore    *store.UserStore
	catalog      *plan.Catalog
	stripeClient *stripe.Client
	synchronizer *sync.Synchronizer
	resolver     *tenant.Resolver
	returnURL    string
	logger       *slog.Logger
}

func NewBillingHandler(
	ts *store.TeamStore,
	ss *store.SubscriptionStore,
	us *store.UserStore,
	catalog *plan.Catalog,
	sc *stripe.Client,
	synchronizer *sync.Synchronizer,
	resolver *tenant.Resolver,
	returnURL string,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		teamStore:    ts,
		subStore:     ss,
		userStore:    us,
		catalog:      catalog,
		stripeClient: sc,
		synchronizer: synchronizer,
		resolver:     resolver,
		returnURL:    returnURL,
		logger:       logger,
	}
}

// Plans lists the purchasable catalog.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.List())
}

// ensureCustomer returns the team's Stripe customer id, creating the
// customer on first use.
func (h *BillingHandler) ensureCustomer(tc *tenant.TeamContext) (string, error) {
	if tc.Team.StripeCustomerID != nil && *tc.Team.StripeCustomerID != "" {
		return *tc.Team.StripeCustomerID, nil
	}

	owner, err := h.userStore.GetByID(tc.Team.OwnerID)
	if err != nil || owner == nil {
		return "", errors.New("owner not found")
	}

	customerID, err := h.stripeClient.CreateCustomer(owner.Email, tc.Team.Name, tc.Team.ID)
	if err != nil {
		return "", err
	}
	if err := h.teamStore.UpdateStripeCustomerID(tc.Team.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Interval string `json:"interval"`
}

// Checkout starts a Stripe Checkout session for a paid plan.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageBilling {
		writeError(w, http.StatusForbidden, "manage_billing permission required")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p, err := h.catalog.Get(req.PlanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown plan")
		return
	}
	priceID := p.PriceID(req.Interval)
	if priceID == "" {
		writeError(w, http.StatusBadRequest, "plan is not purchasable")
		return
	}

	customerID, err := h.ensureCustomer(tc)
	if err != nil {
		h.logger.Error("ensure stripe customer", "team_id", tc.Team.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}

	url, err := h.stripeClient.CreateCheckoutSession(customerID, priceID, tc.Team.ID, p.ID)
	if err != nil {
		h.logger.Error("create checkout session", "team_id", tc.Team.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Portal opens the Stripe billing portal for self-service management.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageBilling {
		writeError(w, http.StatusForbidden, "manage_billing permission required")
		return
	}
	if tc.Team.StripeCustomerID == nil || *tc.Team.StripeCustomerID == "" {
		writeError(w, http.StatusBadRequest, "no billing history for this team")
		return
	}

	url, err := h.stripeClient.CreateBillingPortalSession(*tc.Team.StripeCustomerID, h.returnURL)
	if err != nil {
		h.logger.Error("create portal session", "team_id", tc.Team.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open billing portal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Subscription reports the stored subscription row and the effective plan.
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ViewBilling {
		writeError(w, http.StatusForbidden, "view_billing permission required")
		return
	}

	sub, err := h.subStore.GetByTeamID(tc.Team.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"plan":         h.catalog.Effective(sub),
	})
}

func (h *BillingHandler) Payments(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ViewBilling {
		writeError(w, http.StatusForbidden, "view_billing permission required")
		return
	}

	payments, err := h.subStore.ListPaymentsByTeam(tc.Team.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// Sync reconciles the stored subscription against Stripe on demand, for
// recovering from missed webhooks.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageBilling {
		writeError(w, http.StatusForbidden, "manage_billing permission required")
		return
	}
	if tc.Team.StripeCustomerID == nil || *tc.Team.StripeCustomerID == "" {
		writeError(w, http.StatusBadRequest, "no billing history for this team")
		return
	}

	applied, err := h.synchronizer.SyncTeam(*tc.Team.StripeCustomerID)
	if err != nil {
		h.logger.Error("manual subscription sync", "team_id", tc.Team.ID, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": applied})
}

// Webhook receives Stripe events. Persistence failures answer 500 so
// Stripe re-delivers; bad signatures answer 400 and are never retried
// into the store.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.synchronizer.ApplyEvent(event); err != nil {
		h.logger.Error("apply webhook event", "type", event.Type, "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "event not applied")
		return
	}

	w.WriteHeader(http.StatusOK)
}
