package store

import (
	"testing"
	"time"

	"github.com/aisleworks/aisle/internal/model"
)

func TestInvitationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	is := NewInvitationStore(db)

	inv, err := is.Create(team.ID, owner.ID, "invitee@example.com", nil)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.Token == "" {
		t.Fatal("expected a token")
	}
	if inv.Status != "pending" {
		t.Errorf("status = %q, want pending", inv.Status)
	}
	if inv.Permissions != nil {
		t.Error("expected no custom permission bundle")
	}
	wantExpiry := time.Now().Add(7 * 24 * time.Hour)
	if inv.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || inv.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expires_at = %v, want ~7 days out", inv.ExpiresAt)
	}

	got, err := is.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != inv.ID {
		t.Fatal("token lookup failed")
	}

	ok, err := is.MarkAccepted(inv.ID)
	if err != nil {
		t.Fatalf("mark accepted: %v", err)
	}
	if !ok {
		t.Fatal("first accept should claim the invitation")
	}

	// Single use: a second claim loses.
	ok, err = is.MarkAccepted(inv.ID)
	if err != nil {
		t.Fatalf("second mark accepted: %v", err)
	}
	if ok {
		t.Fatal("second accept should not claim the invitation")
	}

	// Accepted invitations are no longer resolvable by token.
	got, err = is.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("get accepted by token: %v", err)
	}
	if got != nil {
		t.Error("accepted invitation should not resolve by token")
	}
}

func TestInvitationCustomPermissions(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	is := NewInvitationStore(db)

	perms := &model.PermissionFlags{CanCreateEvents: true, CanManageBilling: true}
	inv, err := is.Create(team.ID, owner.ID, "invitee@example.com", perms)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	got, err := is.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got.Permissions == nil {
		t.Fatal("expected a custom permission bundle")
	}
	if !got.Permissions.CanCreateEvents || !got.Permissions.CanManageBilling {
		t.Error("granted flags lost")
	}
	if !got.Permissions.CanViewBilling {
		t.Error("manage_billing should force view_billing in the stored bundle")
	}
}

func TestInvitationExpiry(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	is := NewInvitationStore(db)

	inv, err := is.Create(team.ID, owner.ID, "invitee@example.com", nil)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	if _, err := db.Exec(
		`UPDATE team_invitations SET expires_at = datetime('now', '-1 day') WHERE id = ?`, inv.ID,
	); err != nil {
		t.Fatalf("backdate invitation: %v", err)
	}

	got, err := is.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("get expired by token: %v", err)
	}
	if got != nil {
		t.Error("expired invitation should not resolve by token")
	}
}

func TestInvitationRevoke(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	is := NewInvitationStore(db)

	inv, err := is.Create(team.ID, owner.ID, "invitee@example.com", nil)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if err := is.Revoke(inv.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	got, err := is.GetByToken(inv.Token)
	if err != nil {
		t.Fatalf("get revoked by token: %v", err)
	}
	if got != nil {
		t.Error("revoked invitation should not resolve by token")
	}
}
