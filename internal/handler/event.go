package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
	"github.com/aisleworks/aisle/internal/websocket"
)

const dateLayout = "2006-01-02"

type EventHandler struct {
	eventStore *store.EventStore
	guard      *tenant.AccessGuard
	resolver   *tenant.Resolver
	enforcer   *entitlement.Enforcer
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewEventHandler(
	es *store.EventStore,
	guard *tenant.AccessGuard,
	resolver *tenant.Resolver,
	enforcer *entitlement.Enforcer,
	hub *websocket.Hub,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{
		eventStore: es,
		guard:      guard,
		resolver:   resolver,
		enforcer:   enforcer,
		hub:        hub,
		logger:     logger,
	}
}

func (h *EventHandler) broadcast(teamID *int64, msg websocket.Message) {
	if h.hub != nil && teamID != nil {
		h.hub.BroadcastTeam(*teamID, msg)
	}
}

type eventRequest struct {
	Title     string `json:"title"`
	EventDate string `json:"event_date"`
	Venue     string `json:"venue"`
	Personal  bool   `json:"personal"`
}

func parseEventDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// Create adds an event. Team events consume the active-event quota;
// personal events belong to the creator alone and are not metered.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	eventDate, ok := parseEventDate(req.EventDate)
	if !ok {
		writeError(w, http.StatusBadRequest, "event_date must be YYYY-MM-DD")
		return
	}

	userID := auth.UserID(r.Context())

	var teamID *int64
	if !req.Personal {
		tc := resolveTeam(w, r, h.resolver)
		if tc == nil {
			return
		}
		if !tc.Permissions().CreateEvents {
			writeError(w, http.StatusForbidden, "create_events permission required")
			return
		}
		if res := h.enforcer.CheckLimit(tc.Team.ID, entitlement.DimensionEvents, 0); !res.Allowed {
			writeLimitDenied(w, res)
			return
		}
		id := tc.Team.ID
		teamID = &id
	}

	event, err := h.eventStore.Create(teamID, userID, req.Title, eventDate, strings.TrimSpace(req.Venue))
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.broadcast(teamID, websocket.NewMessage("event", "created", event.ID, nil))
	writeJSON(w, http.StatusCreated, event)
}

// List returns the caller's visible events: the team's events (their own
// only, without view_all_events) plus their personal events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	userID := auth.UserID(r.Context())
	includeArchived := r.URL.Query().Get("archived") == "true"

	teamEvents, err := h.eventStore.ListByTeam(tc.Team.ID, includeArchived)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if !tc.Permissions().ViewAllEvents {
		own := teamEvents[:0]
		for _, ev := range teamEvents {
			if ev.CreatedBy == userID {
				own = append(own, ev)
			}
		}
		teamEvents = own
	}

	personal, err := h.eventStore.ListPersonal(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"team":     teamEvents,
		"personal": personal,
	})
}

// loadAccessible runs the access check and writes the response on denial.
// Denied and missing events are indistinguishable to the caller.
func (h *EventHandler) loadAccessible(w http.ResponseWriter, r *http.Request) *model.Event {
	eventID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return nil
	}

	decision, event, err := h.guard.CheckAccess(eventID, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("event access check", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if decision != tenant.DecisionAllowed {
		writeError(w, http.StatusNotFound, "event not found")
		return nil
	}
	return event
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event := h.loadAccessible(w, r)
	if event == nil {
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	event := h.loadAccessible(w, r)
	if event == nil {
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	eventDate, ok := parseEventDate(req.EventDate)
	if !ok {
		writeError(w, http.StatusBadRequest, "event_date must be YYYY-MM-DD")
		return
	}

	updated, err := h.eventStore.Update(event.ID, req.Title, eventDate, strings.TrimSpace(req.Venue))
	if err != nil {
		h.logger.Error("update event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("event", "updated", event.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

type archiveRequest struct {
	Archived bool `json:"archived"`
}

// Archive toggles archived state. Archived team events stop counting
// against the active-event quota.
func (h *EventHandler) Archive(w http.ResponseWriter, r *http.Request) {
	event := h.loadAccessible(w, r)
	if event == nil {
		return
	}

	var req archiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Unarchiving brings the event back under the quota.
	if event.TeamID != nil && event.Archived && !req.Archived {
		if res := h.enforcer.CheckLimit(*event.TeamID, entitlement.DimensionEvents, 0); !res.Allowed {
			writeLimitDenied(w, res)
			return
		}
	}

	updated, err := h.eventStore.SetArchived(event.ID, req.Archived)
	if err != nil {
		h.logger.Error("archive event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive event")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("event", "archived", event.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes an event. Team events additionally require the
// delete_events permission; personal events need only creator access.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	event := h.loadAccessible(w, r)
	if event == nil {
		return
	}

	if event.TeamID != nil {
		tc := resolveTeam(w, r, h.resolver)
		if tc == nil {
			return
		}
		if !tc.Permissions().DeleteEvents {
			writeError(w, http.StatusForbidden, "delete_events permission required")
			return
		}
	}

	if err := h.eventStore.Delete(event.ID); err != nil {
		h.logger.Error("delete event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("event", "deleted", event.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}
