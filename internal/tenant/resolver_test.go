package tenant

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/aisleworks/aisle/internal/database"
	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
)

func setupTenantTest(t *testing.T) (*sql.DB, *store.TeamStore, *Resolver) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	teams := store.NewTeamStore(db)
	resolver := NewResolver(teams, slog.Default())
	return db, teams, resolver
}

func createUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	user, err := store.NewUserStore(db).Create(email, "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestResolveProvisionsTeam(t *testing.T) {
	db, _, resolver := setupTenantTest(t)
	user := createUser(t, db, "new@example.com")

	tc, err := resolver.Resolve(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Team.OwnerID != user.ID {
		t.Errorf("owner_id = %d, want %d", tc.Team.OwnerID, user.ID)
	}
	if tc.Team.Name != "My Team" {
		t.Errorf("name = %q, want default", tc.Team.Name)
	}
	if tc.Role() != RoleOwner {
		t.Errorf("role = %q, want owner", tc.Role())
	}
	if !tc.Permissions().ManageBilling {
		t.Error("owner should have full permissions")
	}

	// Second resolve finds the same team, no duplicate provisioning.
	again, err := resolver.Resolve(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.Team.ID != tc.Team.ID {
		t.Error("resolve provisioned a second team")
	}
}

func TestResolveExistingOwner(t *testing.T) {
	db, teams, resolver := setupTenantTest(t)
	user := createUser(t, db, "owner@example.com")
	team, err := teams.Create("Bloom & Vine", user.ID)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}

	tc, err := resolver.Resolve(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Team.ID != team.ID {
		t.Error("resolver did not find the owned team")
	}
	if tc.Role() != RoleOwner {
		t.Errorf("role = %q, want owner", tc.Role())
	}
}

func TestResolveMember(t *testing.T) {
	db, teams, resolver := setupTenantTest(t)
	owner := createUser(t, db, "owner@example.com")
	member := createUser(t, db, "member@example.com")
	team, err := teams.Create("Bloom & Vine", owner.ID)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if _, err := teams.AddMember(team.ID, member.ID, "member", model.PermissionFlags{
		CanCreateEvents: true,
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	tc, err := resolver.Resolve(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Team.ID != team.ID {
		t.Error("resolver did not find the membership team")
	}
	if tc.Role() != RoleMember {
		t.Errorf("role = %q, want member", tc.Role())
	}
	if tc.Permissions().ManageTeam {
		t.Error("member resolved with owner permissions")
	}
	if !tc.Permissions().CreateEvents {
		t.Error("stored member flag lost")
	}
}

func TestResolveExistingNoProvision(t *testing.T) {
	db, _, resolver := setupTenantTest(t)
	user := createUser(t, db, "new@example.com")

	tc, err := resolver.ResolveExisting(user.ID)
	if err != nil {
		t.Fatalf("resolve existing: %v", err)
	}
	if tc != nil {
		t.Error("resolve existing must not provision")
	}
}
