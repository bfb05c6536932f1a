package store

import (
	"testing"
	"time"
)

func TestEventCRUD(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	es := NewEventStore(db)

	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	event, err := es.Create(&team.ID, owner.ID, "Smith Wedding", &date, "Rose Garden")
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.TeamID == nil || *event.TeamID != team.ID {
		t.Error("team_id not persisted")
	}
	if event.Archived {
		t.Error("new events should not be archived")
	}

	updated, err := es.Update(event.ID, "Smith-Jones Wedding", &date, "Lakeside Pavilion")
	if err != nil {
		t.Fatalf("update event: %v", err)
	}
	if updated.Title != "Smith-Jones Wedding" || updated.Venue != "Lakeside Pavilion" {
		t.Error("update not persisted")
	}

	if err := es.Delete(event.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	got, err := es.GetByID(event.ID)
	if err != nil {
		t.Fatalf("get deleted event: %v", err)
	}
	if got != nil {
		t.Error("expected nil for deleted event")
	}
}

func TestEventCountExcludesArchivedAndPersonal(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	es := NewEventStore(db)

	active, err := es.Create(&team.ID, owner.ID, "Active", nil, "")
	if err != nil {
		t.Fatalf("create active: %v", err)
	}
	archived, err := es.Create(&team.ID, owner.ID, "Archived", nil, "")
	if err != nil {
		t.Fatalf("create archived: %v", err)
	}
	if _, err := es.SetArchived(archived.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := es.Create(nil, owner.ID, "Personal", nil, ""); err != nil {
		t.Fatalf("create personal: %v", err)
	}

	count, err := es.CountActiveByTeam(team.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// Unarchiving restores the event to the count.
	if _, err := es.SetArchived(archived.ID, false); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	count, _ = es.CountActiveByTeam(team.ID)
	if count != 2 {
		t.Errorf("count after unarchive = %d, want 2", count)
	}
	_ = active
}

func TestEventListScopes(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	es := NewEventStore(db)

	if _, err := es.Create(&team.ID, owner.ID, "Team Event", nil, ""); err != nil {
		t.Fatalf("create team event: %v", err)
	}
	archived, err := es.Create(&team.ID, owner.ID, "Old Event", nil, "")
	if err != nil {
		t.Fatalf("create old event: %v", err)
	}
	if _, err := es.SetArchived(archived.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := es.Create(nil, owner.ID, "Personal Event", nil, ""); err != nil {
		t.Fatalf("create personal event: %v", err)
	}

	teamEvents, err := es.ListByTeam(team.ID, false)
	if err != nil {
		t.Fatalf("list team events: %v", err)
	}
	if len(teamEvents) != 1 {
		t.Errorf("active team events = %d, want 1", len(teamEvents))
	}

	all, err := es.ListByTeam(team.ID, true)
	if err != nil {
		t.Fatalf("list all team events: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all team events = %d, want 2", len(all))
	}

	personal, err := es.ListPersonal(owner.ID)
	if err != nil {
		t.Fatalf("list personal: %v", err)
	}
	if len(personal) != 1 || personal[0].Title != "Personal Event" {
		t.Errorf("personal events = %v, want only the personal one", personal)
	}
}
