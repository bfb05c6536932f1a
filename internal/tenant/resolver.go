package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
)

const (
	defaultTeamName  = "My Team"
	provisionRetries = 3
	provisionBackoff = 25 * time.Millisecond
)

// ErrTeamUnavailable is returned when a user has no team and auto-provisioning
// one failed. Callers treat it as non-fatal where team absence is tolerable
// (listing personal resources) and fatal where a team is required.
var ErrTeamUnavailable = errors.New("team unavailable")

// TeamContext is the result of resolving a user's team.
type TeamContext struct {
	Team       *model.Team
	Membership Membership
}

func (tc *TeamContext) Role() Role                 { return tc.Membership.Role() }
func (tc *TeamContext) Permissions() PermissionSet { return tc.Membership.Permissions() }

// Resolver determines the single team a user belongs to, auto-provisioning a
// default team when none exists.
type Resolver struct {
	teams  *store.TeamStore
	logger *slog.Logger
}

func NewResolver(teams *store.TeamStore, logger *slog.Logger) *Resolver {
	return &Resolver{teams: teams, logger: logger}
}

// Resolve returns the user's team. Ownership is checked before membership:
// it is authoritative, and under the one-team invariant a user can never
// satisfy both paths. A user with neither gets a team auto-provisioned.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*TeamContext, error) {
	tc, err := r.lookup(userID)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		return tc, nil
	}
	return r.provision(ctx, userID, defaultTeamName)
}

// ResolveExisting is Resolve without auto-provisioning: it returns (nil, nil)
// when the user has no team.
func (r *Resolver) ResolveExisting(userID int64) (*TeamContext, error) {
	return r.lookup(userID)
}

func (r *Resolver) lookup(userID int64) (*TeamContext, error) {
	owned, err := r.teams.GetByOwnerID(userID)
	if err != nil {
		return nil, fmt.Errorf("resolve team ownership: %w", err)
	}
	if owned != nil {
		return &TeamContext{Team: owned, Membership: OwnerMembership(owned.ID, userID)}, nil
	}

	member, err := r.teams.GetMemberByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("resolve team membership: %w", err)
	}
	if member == nil {
		return nil, nil
	}

	team, err := r.teams.GetByID(member.TeamID)
	if err != nil {
		return nil, fmt.Errorf("load member team: %w", err)
	}
	if team == nil {
		return nil, fmt.Errorf("membership %d references missing team %d", member.ID, member.TeamID)
	}
	return &TeamContext{Team: team, Membership: MemberOf(*member)}, nil
}

// provision creates a team owned by the user. Two concurrent requests from a
// user with no team can both reach this point; the unique constraint on
// teams.owner_id makes one insert fail, and the loser re-reads the winner's
// team instead of surfacing a hard error.
func (r *Resolver) provision(ctx context.Context, userID int64, name string) (*TeamContext, error) {
	var tc *TeamContext
	err := retry.Do(ctx, retry.WithMaxRetries(provisionRetries, retry.NewConstant(provisionBackoff)), func(ctx context.Context) error {
		team, createErr := r.teams.Create(name, userID)
		if createErr == nil {
			tc = &TeamContext{Team: team, Membership: OwnerMembership(team.ID, userID)}
			return nil
		}

		existing, lookupErr := r.teams.GetByOwnerID(userID)
		if lookupErr == nil && existing != nil {
			tc = &TeamContext{Team: existing, Membership: OwnerMembership(existing.ID, userID)}
			return nil
		}

		return retry.RetryableError(createErr)
	})
	if err != nil {
		r.logger.Error("team auto-provisioning failed", "user_id", userID, "error", err)
		return nil, ErrTeamUnavailable
	}

	r.logger.Info("auto-provisioned team", "team_id", tc.Team.ID, "owner_id", userID)
	return tc, nil
}
