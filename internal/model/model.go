package model

import "time"

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// MagicLink is a short-lived email auth code. Only the bcrypt hash of the
// code is stored; the plaintext exists only in the email that was sent.
type MagicLink struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	CodeHash  string     `json:"-"`
	Purpose   string     `json:"purpose"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}

// Team is a tenant: one owner plus zero or more members. The owner is
// recorded by owner_id only and never has a team_members row.
type Team struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	OwnerID          int64     `json:"owner_id"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PermissionFlags is the granular permission bundle stored per membership.
type PermissionFlags struct {
	CanManageTeam     bool `json:"can_manage_team"`
	CanManageBilling  bool `json:"can_manage_billing"`
	CanViewBilling    bool `json:"can_view_billing"`
	CanManageSettings bool `json:"can_manage_settings"`
	CanCreateEvents   bool `json:"can_create_events"`
	CanViewAllEvents  bool `json:"can_view_all_events"`
	CanDeleteEvents   bool `json:"can_delete_events"`
	CanInviteMembers  bool `json:"can_invite_members"`
}

type TeamMember struct {
	ID     int64  `json:"id"`
	TeamID int64  `json:"team_id"`
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	PermissionFlags
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TeamInvitation struct {
	ID          int64  `json:"id"`
	TeamID      int64  `json:"team_id"`
	InviterID   int64  `json:"inviter_id"`
	Email       string `json:"email"`
	Token       string `json:"token"`
	Status      string `json:"status"`
	Permissions *PermissionFlags `json:"permissions,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event is a wedding event. TeamID is nil for personal events, which are
// visible only to their creator.
type Event struct {
	ID        int64      `json:"id"`
	TeamID    *int64     `json:"team_id"`
	CreatedBy int64      `json:"created_by"`
	Title     string     `json:"title"`
	EventDate *time.Time `json:"event_date"`
	Venue     string     `json:"venue"`
	Archived  bool       `json:"archived"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Task struct {
	ID         int64      `json:"id"`
	EventID    int64      `json:"event_id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	AssigneeID *int64     `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Deal is a CRM deal. Deals are owned per-user, not per-team; team quota
// counting aggregates across all member user ids.
type Deal struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Title      string    `json:"title"`
	Stage      string    `json:"stage"`
	ValueCents int64     `json:"value_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TeamSubscription mirrors the Stripe subscription for a team. One row per
// team (unique on team_id); written only by the subscription synchronizer.
type TeamSubscription struct {
	ID                   int64      `json:"id"`
	TeamID               int64      `json:"team_id"`
	StripeCustomerID     string     `json:"stripe_customer_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	Status               string     `json:"status"`
	PlanID               *string    `json:"plan_id"`
	BillingInterval      string     `json:"billing_interval"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	TrialStart           *time.Time `json:"trial_start"`
	TrialEnd             *time.Time `json:"trial_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CanceledAt           *time.Time `json:"canceled_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type Payment struct {
	ID              int64     `json:"id"`
	TeamID          int64     `json:"team_id"`
	StripeInvoiceID string    `json:"stripe_invoice_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
