// Package entitlement gates resource-creating actions against the team's
// plan-derived quotas and feature flags.
package entitlement

import (
	"log/slog"

	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/store"
)

type Dimension string

const (
	DimensionEvents  Dimension = "events"
	DimensionMembers Dimension = "members"
	DimensionTasks   Dimension = "tasks"
	DimensionDeals   Dimension = "deals"
)

type Feature string

const (
	FeatureChat             Feature = "chat"
	FeatureTaskAssignment   Feature = "task_assignment"
	FeatureContactsSharing  Feature = "contacts_sharing"
	FeatureSuppliersSharing Feature = "suppliers_sharing"
)

// LimitResult is the outcome of a quota check. Limit is nil for unlimited
// plans. RequiredPlan is set only when the action is not allowed.
type LimitResult struct {
	Allowed      bool   `json:"allowed"`
	Current      int    `json:"current"`
	Limit        *int   `json:"limit"`
	Plan         string `json:"plan"`
	RequiredPlan string `json:"required_plan,omitempty"`
}

// FeatureResult is the outcome of a boolean feature gate.
type FeatureResult struct {
	Allowed      bool   `json:"allowed"`
	Plan         string `json:"plan"`
	RequiredPlan string `json:"required_plan,omitempty"`
}

// Summary reports every quota dimension and feature gate for a team in one
// shot, for the client's usage dashboard.
type Summary struct {
	Plan     string                    `json:"plan"`
	Limits   map[Dimension]LimitResult `json:"limits"`
	Features map[Feature]FeatureResult `json:"features"`
}

// Enforcer checks proposed actions against the team's effective plan.
//
// Policy: quota checks fail open. A transient read failure while counting
// usage, or while loading the subscription row, must never block a
// legitimate action; the failure is logged and the action allowed. Writes
// to subscription state are the synchronizer's concern and fail closed.
type Enforcer struct {
	catalog *plan.Catalog
	subs    *store.SubscriptionStore
	teams   *store.TeamStore
	events  *store.EventStore
	tasks   *store.TaskStore
	deals   *store.DealStore
	logger  *slog.Logger
}

func NewEnforcer(
	catalog *plan.Catalog,
	subs *store.SubscriptionStore,
	teams *store.TeamStore,
	events *store.EventStore,
	tasks *store.TaskStore,
	deals *store.DealStore,
	logger *slog.Logger,
) *Enforcer {
	return &Enforcer{
		catalog: catalog,
		subs:    subs,
		teams:   teams,
		events:  events,
		tasks:   tasks,
		deals:   deals,
		logger:  logger,
	}
}

// effectivePlan loads the team's plan, falling back to starter on a lookup
// failure (failOpen reports whether the fallback was due to an error).
func (e *Enforcer) effectivePlan(teamID int64) (p *plan.Plan, failOpen bool) {
	sub, err := e.subs.GetByTeamID(teamID)
	if err != nil {
		e.logger.Warn("entitlement: subscription lookup failed, failing open",
			"team_id", teamID, "error", err)
		return e.catalog.Starter(), true
	}
	return e.catalog.Effective(sub), false
}

// nextPlan is the one-step upgrade ladder suggested on denial.
func nextPlan(current string) string {
	if current == "starter" {
		return "professional"
	}
	return "enterprise"
}

// CheckLimit checks a quota dimension. scopeID is the event id for the
// tasks dimension and ignored otherwise. The unlimited sentinel short-
// circuits before any usage count is issued.
func (e *Enforcer) CheckLimit(teamID int64, dim Dimension, scopeID int64) LimitResult {
	p, failedOpen := e.effectivePlan(teamID)
	if failedOpen {
		return LimitResult{Allowed: true, Plan: p.Name}
	}

	limit := e.limitFor(p, dim)
	if limit == plan.Unlimited {
		return LimitResult{Allowed: true, Plan: p.Name}
	}

	current, err := e.countUsage(teamID, dim, scopeID)
	if err != nil {
		e.logger.Warn("entitlement: usage count failed, failing open",
			"team_id", teamID, "dimension", dim, "error", err)
		return LimitResult{Allowed: true, Plan: p.Name}
	}

	res := LimitResult{
		Allowed: current < limit,
		Current: current,
		Limit:   &limit,
		Plan:    p.Name,
	}
	if !res.Allowed {
		res.RequiredPlan = nextPlan(p.Name)
	}
	return res
}

// CheckFeature checks a boolean feature gate.
func (e *Enforcer) CheckFeature(teamID int64, feature Feature) FeatureResult {
	p, failedOpen := e.effectivePlan(teamID)
	if failedOpen {
		return FeatureResult{Allowed: true, Plan: p.Name}
	}

	res := FeatureResult{Allowed: e.featureFor(p, feature), Plan: p.Name}
	if !res.Allowed {
		res.RequiredPlan = nextPlan(p.Name)
	}
	return res
}

// Summarize evaluates every dimension and feature for the team. The tasks
// dimension is per-event and reported without a usage count here.
func (e *Enforcer) Summarize(teamID int64) Summary {
	p, _ := e.effectivePlan(teamID)

	s := Summary{
		Plan:     p.Name,
		Limits:   make(map[Dimension]LimitResult, 4),
		Features: make(map[Feature]FeatureResult, 4),
	}
	for _, dim := range []Dimension{DimensionEvents, DimensionMembers, DimensionDeals} {
		s.Limits[dim] = e.CheckLimit(teamID, dim, 0)
	}
	taskLimit := e.limitFor(p, DimensionTasks)
	tasks := LimitResult{Allowed: true, Plan: p.Name}
	if taskLimit != plan.Unlimited {
		tasks.Limit = &taskLimit
	}
	s.Limits[DimensionTasks] = tasks

	for _, f := range []Feature{FeatureChat, FeatureTaskAssignment, FeatureContactsSharing, FeatureSuppliersSharing} {
		s.Features[f] = e.CheckFeature(teamID, f)
	}
	return s
}

func (e *Enforcer) limitFor(p *plan.Plan, dim Dimension) int {
	switch dim {
	case DimensionEvents:
		return p.Limits.MaxActiveEvents
	case DimensionMembers:
		return p.Limits.MaxMembers
	case DimensionTasks:
		return p.Limits.MaxTasksPerEvent
	case DimensionDeals:
		return p.Limits.MaxDeals
	}
	return plan.Unlimited
}

func (e *Enforcer) featureFor(p *plan.Plan, feature Feature) bool {
	switch feature {
	case FeatureChat:
		return p.Limits.ChatEnabled
	case FeatureTaskAssignment:
		return p.Limits.TaskAssignment
	case FeatureContactsSharing:
		return p.Limits.ContactsShared
	case FeatureSuppliersSharing:
		return p.Limits.SuppliersShared
	}
	return false
}

func (e *Enforcer) countUsage(teamID int64, dim Dimension, scopeID int64) (int, error) {
	switch dim {
	case DimensionEvents:
		return e.events.CountActiveByTeam(teamID)
	case DimensionMembers:
		// The owner holds a seat alongside the membership rows.
		n, err := e.teams.CountMembers(teamID)
		if err != nil {
			return 0, err
		}
		return n + 1, nil
	case DimensionTasks:
		return e.tasks.CountByEvent(scopeID)
	case DimensionDeals:
		// Deals are owned per-user; aggregate the owner and every member.
		team, err := e.teams.GetByID(teamID)
		if err != nil {
			return 0, err
		}
		ids, err := e.teams.MemberUserIDs(teamID)
		if err != nil {
			return 0, err
		}
		if team != nil {
			ids = append(ids, team.OwnerID)
		}
		return e.deals.CountActiveByUsers(ids)
	}
	return 0, nil
}
