package stripe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string

	// AllowUnverified skips webhook signature verification when no
	// signature header is present. Development only; every use is logged
	// as a warning.
	AllowUnverified bool
}

type Client struct {
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg, logger: logger}
}

// CreateCustomer creates a Stripe customer for a team and returns its ID.
func (c *Client) CreateCustomer(email, teamName string, teamID int64) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(teamName),
	}
	params.AddMetadata("team_id", strconv.FormatInt(teamID, 10))
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription checkout session and returns
// its URL. The team id and chosen plan id ride on the subscription metadata
// so webhook events can be attributed without a separate lookup.
func (c *Client) CreateCheckoutSession(customerID, priceID string, teamID int64, planID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"team_id": strconv.FormatInt(teamID, 10),
				"plan_id": planID,
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	params.AddMetadata("team_id", strconv.FormatInt(teamID, 10))
	params.AddMetadata("plan_id", planID)
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a billing portal session and returns its URL.
func (c *Client) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// GetSubscription fetches a subscription by id.
func (c *Client) GetSubscription(id string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions lists all of a customer's subscriptions, including
// canceled ones, for operator-triggered reconciliation.
func (c *Client) ListSubscriptions(customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	var subs []*stripe.Subscription
	it := subscription.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return subs, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
// Unverifiable payloads are rejected; the caller must answer with an error
// status so the provider's retry mechanism re-delivers them.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if sigHeader == "" && c.cfg.AllowUnverified {
		c.logger.Warn("accepting unverified webhook payload; development mode only")
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, fmt.Errorf("parse unverified event: %w", err)
		}
		return event, nil
	}
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
