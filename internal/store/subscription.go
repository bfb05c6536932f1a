package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aisleworks/aisle/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.TeamSubscription, error) {
	var sub model.TeamSubscription
	var planID sql.NullString
	var periodStart, periodEnd, trialStart, trialEnd, canceledAt sql.NullTime
	var cancelAtPeriodEnd int
	err := scanner.Scan(
		&sub.ID, &sub.TeamID, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.Status, &planID, &sub.BillingInterval,
		&periodStart, &periodEnd, &trialStart, &trialEnd,
		&cancelAtPeriodEnd, &canceledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if planID.Valid {
		sub.PlanID = &planID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	if trialStart.Valid {
		sub.TrialStart = &trialStart.Time
	}
	if trialEnd.Valid {
		sub.TrialEnd = &trialEnd.Time
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

const subscriptionCols = `id, team_id, stripe_customer_id, stripe_subscription_id,
	status, plan_id, billing_interval,
	current_period_start, current_period_end, trial_start, trial_end,
	cancel_at_period_end, canceled_at, created_at, updated_at`

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Upsert writes the subscription row for a team in a single statement keyed
// on the team_id unique constraint. Re-applying identical data is a no-op in
// effect, and a failed statement persists nothing.
func (s *SubscriptionStore) Upsert(sub *model.TeamSubscription) (*model.TeamSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO team_subscriptions (team_id, stripe_customer_id, stripe_subscription_id,
			status, plan_id, billing_interval,
			current_period_start, current_period_end, trial_start, trial_end,
			cancel_at_period_end, canceled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(team_id) DO UPDATE SET
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			status = excluded.status,
			plan_id = excluded.plan_id,
			billing_interval = excluded.billing_interval,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			trial_start = excluded.trial_start,
			trial_end = excluded.trial_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			updated_at = datetime('now')`,
		sub.TeamID, sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.Status, nullStr(sub.PlanID), sub.BillingInterval,
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd),
		nullTime(sub.TrialStart), nullTime(sub.TrialEnd),
		boolToInt(sub.CancelAtPeriodEnd), nullTime(sub.CanceledAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.GetByTeamID(sub.TeamID)
}

func (s *SubscriptionStore) GetByTeamID(teamID int64) (*model.TeamSubscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM team_subscriptions WHERE team_id = ?`,
		teamID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by team: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.TeamSubscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM team_subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

// MarkCanceled sets the subscription to canceled without deleting the row;
// the plan reference and payment history must survive for billing views.
func (s *SubscriptionStore) MarkCanceled(stripeSubID string, canceledAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE team_subscriptions SET status = 'canceled', canceled_at = ?, updated_at = datetime('now')
		 WHERE stripe_subscription_id = ?`,
		canceledAt, stripeSubID,
	)
	if err != nil {
		return fmt.Errorf("mark subscription canceled: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateStatusByStripeID(stripeSubID, status string) error {
	_, err := s.db.Exec(
		`UPDATE team_subscriptions SET status = ?, updated_at = datetime('now')
		 WHERE stripe_subscription_id = ?`,
		status, stripeSubID,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

func scanPayment(scanner interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	err := scanner.Scan(
		&p.ID, &p.TeamID, &p.StripeInvoiceID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const paymentCols = `id, team_id, stripe_invoice_id, amount, currency, status, created_at`

func (s *SubscriptionStore) AppendPayment(teamID int64, invoiceID string, amount int64, currency, status string) (*model.Payment, error) {
	result, err := s.db.Exec(
		`INSERT INTO payments (team_id, stripe_invoice_id, amount, currency, status) VALUES (?, ?, ?, ?, ?)`,
		teamID, invoiceID, amount, currency, status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE id = ?`, id)
	return scanPayment(row)
}

func (s *SubscriptionStore) ListPaymentsByTeam(teamID int64) ([]model.Payment, error) {
	rows, err := s.db.Query(
		`SELECT `+paymentCols+` FROM payments WHERE team_id = ? ORDER BY created_at DESC, id DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
