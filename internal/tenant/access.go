package tenant

import (
	"fmt"

	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
)

// Decision is the outcome of an access check.
type Decision int

const (
	DecisionDenied Decision = iota
	DecisionAllowed
	DecisionNotFound
)

// AccessGuard decides whether a user may read or write a specific event.
type AccessGuard struct {
	events *store.EventStore
	teams  *store.TeamStore
}

func NewAccessGuard(events *store.EventStore, teams *store.TeamStore) *AccessGuard {
	return &AccessGuard{events: events, teams: teams}
}

// CheckAccess evaluates the two ownership paths in order. Personal events
// (no team association) are visible only to their creator. Team events are
// visible to the team's members and to its owner; ownership is checked
// independently of the membership table since owners have no membership row.
//
// A failed membership lookup is a system error, never Denied: the two must
// stay distinguishable so a transient read failure cannot masquerade as a
// tenancy violation.
func (g *AccessGuard) CheckAccess(eventID, userID int64) (Decision, *model.Event, error) {
	evt, err := g.events.GetByID(eventID)
	if err != nil {
		return DecisionDenied, nil, fmt.Errorf("load event: %w", err)
	}
	if evt == nil {
		return DecisionNotFound, nil, nil
	}

	if evt.TeamID == nil {
		if evt.CreatedBy == userID {
			return DecisionAllowed, evt, nil
		}
		return DecisionDenied, evt, nil
	}

	team, err := g.teams.GetByID(*evt.TeamID)
	if err != nil {
		return DecisionDenied, nil, fmt.Errorf("load event team: %w", err)
	}
	if team != nil && team.OwnerID == userID {
		return DecisionAllowed, evt, nil
	}

	member, err := g.teams.GetMember(*evt.TeamID, userID)
	if err != nil {
		return DecisionDenied, nil, fmt.Errorf("load event membership: %w", err)
	}
	if member != nil {
		return DecisionAllowed, evt, nil
	}
	return DecisionDenied, evt, nil
}
