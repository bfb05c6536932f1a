package store

import (
	"database/sql"
	"testing"

	"github.com/aisleworks/aisle/internal/database"
	"github.com/aisleworks/aisle/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	user, err := NewUserStore(db).Create(email, "Test User")
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func seedTeam(t *testing.T, db *sql.DB, ownerEmail string) (*model.Team, *model.User) {
	t.Helper()
	owner := seedUser(t, db, ownerEmail)
	team, err := NewTeamStore(db).Create("Test Team", owner.ID)
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return team, owner
}
