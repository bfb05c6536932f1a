package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/database"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

type eventTestEnv struct {
	db     *sql.DB
	mux    *http.ServeMux
	users  *store.UserStore
	teams  *store.TeamStore
	events *store.EventStore
	owner  *model.User
	team   *model.Team
}

func setupEventTest(t *testing.T) *eventTestEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	teams := store.NewTeamStore(db)
	events := store.NewEventStore(db)
	tasks := store.NewTaskStore(db)
	deals := store.NewDealStore(db)
	subs := store.NewSubscriptionStore(db)

	owner, err := users.Create("owner@example.com", "Owner")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	team, err := teams.Create("Petals & Co", owner.ID)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}

	logger := slog.Default()
	catalog := plan.NewCatalog(plan.PriceConfig{})
	resolver := tenant.NewResolver(teams, logger)
	guard := tenant.NewAccessGuard(events, teams)
	enforcer := entitlement.NewEnforcer(catalog, subs, teams, events, tasks, deals, logger)
	h := NewEventHandler(events, guard, resolver, enforcer, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", h.Create)
	mux.HandleFunc("GET /api/events", h.List)
	mux.HandleFunc("GET /api/events/{id}", h.Get)
	mux.HandleFunc("PUT /api/events/{id}", h.Update)
	mux.HandleFunc("POST /api/events/{id}/archive", h.Archive)
	mux.HandleFunc("DELETE /api/events/{id}", h.Delete)

	return &eventTestEnv{db: db, mux: mux, users: users, teams: teams, events: events, owner: owner, team: team}
}

func (env *eventTestEnv) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, SessionID: 1}))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func TestEventCreateAndGet(t *testing.T) {
	env := setupEventTest(t)

	rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{
		"title":      "Harbor View Wedding",
		"event_date": "2027-06-12",
		"venue":      "Harbor View Terrace",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created model.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created event: %v", err)
	}
	if created.TeamID == nil || *created.TeamID != env.team.ID {
		t.Errorf("team id = %v, want %d", created.TeamID, env.team.ID)
	}

	rec = env.do(t, env.owner.ID, "GET", fmt.Sprintf("/api/events/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestEventForeignAccessLooksLikeMissing(t *testing.T) {
	env := setupEventTest(t)

	rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{"title": "Private"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created model.Event
	json.Unmarshal(rec.Body.Bytes(), &created)

	outsider, err := env.users.Create("outsider@example.com", "Outsider")
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}

	denied := env.do(t, outsider.ID, "GET", fmt.Sprintf("/api/events/%d", created.ID), nil)
	missing := env.do(t, outsider.ID, "GET", "/api/events/999999", nil)
	if denied.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("denied = %d, missing = %d, want 404 for both", denied.Code, missing.Code)
	}
	if denied.Body.String() != missing.Body.String() {
		t.Error("denied and missing responses must be indistinguishable")
	}
}

func TestEventQuotaDeniedWith402(t *testing.T) {
	env := setupEventTest(t)

	// Starter allows 8 active events.
	for i := 0; i < 8; i++ {
		rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{
			"title": fmt.Sprintf("Event %d", i),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, rec.Code)
		}
	}

	rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{"title": "One too many"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var body struct {
		Error        string `json:"error"`
		Current      int    `json:"current"`
		Limit        int    `json:"limit"`
		RequiredPlan string `json:"required_plan"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if body.Error != "limit_reached" || body.Current != 8 || body.Limit != 8 || body.RequiredPlan != "professional" {
		t.Errorf("denial = %+v", body)
	}

	// Personal events are not metered.
	rec = env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{
		"title":    "My own planning",
		"personal": true,
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("personal create status = %d, want 201", rec.Code)
	}
}

func TestEventCreateRequiresPermission(t *testing.T) {
	env := setupEventTest(t)

	member, err := env.users.Create("member@example.com", "Member")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := env.teams.AddMember(env.team.ID, member.ID, "member", model.PermissionFlags{
		CanViewAllEvents: true,
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rec := env.do(t, member.ID, "POST", "/api/events", map[string]any{"title": "Not allowed"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestEventListScopesForMember(t *testing.T) {
	env := setupEventTest(t)

	member, err := env.users.Create("member@example.com", "Member")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := env.teams.AddMember(env.team.ID, member.ID, "member", model.PermissionFlags{
		CanCreateEvents: true,
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{"title": "Owner event"}); rec.Code != http.StatusCreated {
		t.Fatalf("owner create = %d", rec.Code)
	}
	if rec := env.do(t, member.ID, "POST", "/api/events", map[string]any{"title": "Member event"}); rec.Code != http.StatusCreated {
		t.Fatalf("member create = %d", rec.Code)
	}

	rec := env.do(t, member.ID, "GET", "/api/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var body struct {
		Team     []model.Event `json:"team"`
		Personal []model.Event `json:"personal"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Team) != 1 || body.Team[0].Title != "Member event" {
		t.Errorf("member without view_all_events sees %d team events", len(body.Team))
	}

	ownerList := env.do(t, env.owner.ID, "GET", "/api/events", nil)
	json.Unmarshal(ownerList.Body.Bytes(), &body)
	if len(body.Team) != 2 {
		t.Errorf("owner sees %d team events, want 2", len(body.Team))
	}
}

func TestEventArchiveAndUnarchiveQuota(t *testing.T) {
	env := setupEventTest(t)

	var first model.Event
	rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{"title": "Archived later"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &first)

	rec = env.do(t, env.owner.ID, "POST", fmt.Sprintf("/api/events/%d/archive", first.ID), map[string]any{"archived": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("archive = %d", rec.Code)
	}

	// Fill the freed quota back up, then unarchiving must be denied.
	for i := 0; i < 8; i++ {
		if rec := env.do(t, env.owner.ID, "POST", "/api/events", map[string]any{
			"title": fmt.Sprintf("Filler %d", i),
		}); rec.Code != http.StatusCreated {
			t.Fatalf("filler %d = %d", i, rec.Code)
		}
	}
	rec = env.do(t, env.owner.ID, "POST", fmt.Sprintf("/api/events/%d/archive", first.ID), map[string]any{"archived": false})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("unarchive over quota = %d, want 402", rec.Code)
	}
}

func TestEventDeleteRequiresPermission(t *testing.T) {
	env := setupEventTest(t)

	member, err := env.users.Create("member@example.com", "Member")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := env.teams.AddMember(env.team.ID, member.ID, "member", model.PermissionFlags{
		CanCreateEvents: true,
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rec := env.do(t, member.ID, "POST", "/api/events", map[string]any{"title": "Member event"})
	var created model.Event
	json.Unmarshal(rec.Body.Bytes(), &created)

	if rec := env.do(t, member.ID, "DELETE", fmt.Sprintf("/api/events/%d", created.ID), nil); rec.Code != http.StatusForbidden {
		t.Errorf("member delete = %d, want 403", rec.Code)
	}
	if rec := env.do(t, env.owner.ID, "DELETE", fmt.Sprintf("/api/events/%d", created.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("owner delete = %d, want 204", rec.Code)
	}
}
