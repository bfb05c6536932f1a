// Package plan defines the subscription plan catalog: the quota and feature
// bundles each plan grants, and the mapping from Stripe price ids to plans.
package plan

import (
	"errors"
	"fmt"

	"github.com/aisleworks/aisle/internal/model"
)

// Unlimited is the sentinel for numeric limits with no cap.
const Unlimited = -1

var ErrPlanNotFound = errors.New("plan not found")

// Limits is the quota and feature bundle granted by a plan.
type Limits struct {
	MaxActiveEvents  int  `json:"max_active_events"`
	MaxMembers       int  `json:"max_members"`
	MaxTasksPerEvent int  `json:"max_tasks_per_event"`
	MaxDeals         int  `json:"max_deals"`
	ContactsShared   bool `json:"contacts_shared"`
	SuppliersShared  bool `json:"suppliers_shared"`
	ChatEnabled      bool `json:"chat_enabled"`
	TaskAssignment   bool `json:"task_assignment"`
}

type Plan struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Limits         Limits `json:"limits"`
	MonthlyPriceID string `json:"-"`
	AnnualPriceID  string `json:"-"`
}

// PriceID returns the Stripe price id for a billing interval. Anything other
// than "annual" selects the monthly price.
func (p *Plan) PriceID(interval string) string {
	if interval == "annual" {
		return p.AnnualPriceID
	}
	return p.MonthlyPriceID
}

// PriceConfig carries the Stripe price ids configured per environment.
type PriceConfig struct {
	ProfessionalMonthlyPriceID string
	ProfessionalAnnualPriceID  string
	EnterpriseMonthlyPriceID   string
	EnterpriseAnnualPriceID    string
}

// Catalog is the read-only set of plans. The starter plan is implicit: it
// is what a team has when no active subscription row exists, and it has no
// price ids.
type Catalog struct {
	plans []Plan
	byID  map[string]*Plan
}

func NewCatalog(cfg PriceConfig) *Catalog {
	c := &Catalog{
		plans: []Plan{
			{
				ID:   "starter",
				Name: "starter",
				Limits: Limits{
					MaxActiveEvents:  8,
					MaxMembers:       1,
					MaxTasksPerEvent: 30,
					MaxDeals:         150,
				},
			},
			{
				ID:   "professional",
				Name: "professional",
				Limits: Limits{
					MaxActiveEvents:  50,
					MaxMembers:       5,
					MaxTasksPerEvent: 200,
					MaxDeals:         2500,
					ContactsShared:   true,
					SuppliersShared:  true,
					ChatEnabled:      true,
					TaskAssignment:   true,
				},
				MonthlyPriceID: cfg.ProfessionalMonthlyPriceID,
				AnnualPriceID:  cfg.ProfessionalAnnualPriceID,
			},
			{
				ID:   "enterprise",
				Name: "enterprise",
				Limits: Limits{
					MaxActiveEvents:  Unlimited,
					MaxMembers:       Unlimited,
					MaxTasksPerEvent: Unlimited,
					MaxDeals:         Unlimited,
					ContactsShared:   true,
					SuppliersShared:  true,
					ChatEnabled:      true,
					TaskAssignment:   true,
				},
				MonthlyPriceID: cfg.EnterpriseMonthlyPriceID,
				AnnualPriceID:  cfg.EnterpriseAnnualPriceID,
			},
		},
	}
	c.byID = make(map[string]*Plan, len(c.plans))
	for i := range c.plans {
		c.byID[c.plans[i].ID] = &c.plans[i]
	}
	return c
}

func (c *Catalog) Get(id string) (*Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	return p, nil
}

// Starter returns the implicit default plan.
func (c *Catalog) Starter() *Plan {
	return c.byID["starter"]
}

// List returns all plans in display order.
func (c *Catalog) List() []Plan {
	return c.plans
}

// ResolveByPriceID matches a Stripe price id against each plan's monthly and
// annual prices. Unknown price ids return nil rather than an error: the
// billing provider may introduce prices not yet modeled here.
func (c *Catalog) ResolveByPriceID(priceID string) *Plan {
	if priceID == "" {
		return nil
	}
	for i := range c.plans {
		p := &c.plans[i]
		if p.MonthlyPriceID == priceID || p.AnnualPriceID == priceID {
			return p
		}
	}
	return nil
}

// Effective returns the plan a subscription row grants. A nil row, a row
// whose status is neither active nor trialing, or a row with an unresolvable
// plan id all fall back to starter. Side-effect free.
func (c *Catalog) Effective(sub *model.TeamSubscription) *Plan {
	if sub == nil || sub.PlanID == nil {
		return c.Starter()
	}
	if sub.Status != "active" && sub.Status != "trialing" {
		return c.Starter()
	}
	p, ok := c.byID[*sub.PlanID]
	if !ok {
		return c.Starter()
	}
	return p
}
