package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aisleworks/aisle/internal/model"
)

// invitationTTL is the validity window for invitation tokens. A single
// shared window is used for every entry point.
const invitationTTL = 7 * 24 * time.Hour

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.TeamInvitation, error) {
	var inv model.TeamInvitation
	var custom int
	var flags [8]int
	var acceptedAt sql.NullTime
	err := scanner.Scan(
		&inv.ID, &inv.TeamID, &inv.InviterID, &inv.Email, &inv.Token, &inv.Status,
		&custom,
		&flags[0], &flags[1], &flags[2], &flags[3],
		&flags[4], &flags[5], &flags[6], &flags[7],
		&inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if custom != 0 {
		inv.Permissions = &model.PermissionFlags{
			CanManageTeam:     flags[0] != 0,
			CanManageBilling:  flags[1] != 0,
			CanViewBilling:    flags[2] != 0,
			CanManageSettings: flags[3] != 0,
			CanCreateEvents:   flags[4] != 0,
			CanViewAllEvents:  flags[5] != 0,
			CanDeleteEvents:   flags[6] != 0,
			CanInviteMembers:  flags[7] != 0,
		}
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

const invitationCols = `id, team_id, inviter_id, email, token, status,
	custom_permissions,
	can_manage_team, can_manage_billing, can_view_billing, can_manage_settings,
	can_create_events, can_view_all_events, can_delete_events, can_invite_members,
	expires_at, accepted_at, created_at`

// Create issues a single-use invitation token with a 7-day expiry. perms is
// an optional permission bundle applied when the invitation is accepted.
func (s *InvitationStore) Create(teamID, inviterID int64, email string, perms *model.PermissionFlags) (*model.TeamInvitation, error) {
	token := uuid.NewString()
	expiresAt := time.Now().UTC().Add(invitationTTL)

	custom := 0
	var p model.PermissionFlags
	if perms != nil {
		custom = 1
		p = normalize(*perms)
	}

	result, err := s.db.Exec(
		`INSERT INTO team_invitations (team_id, inviter_id, email, token,
			custom_permissions,
			can_manage_team, can_manage_billing, can_view_billing, can_manage_settings,
			can_create_events, can_view_all_events, can_delete_events, can_invite_members,
			expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		teamID, inviterID, email, token,
		custom,
		boolToInt(p.CanManageTeam), boolToInt(p.CanManageBilling),
		boolToInt(p.CanViewBilling), boolToInt(p.CanManageSettings),
		boolToInt(p.CanCreateEvents), boolToInt(p.CanViewAllEvents),
		boolToInt(p.CanDeleteEvents), boolToInt(p.CanInviteMembers),
		expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM team_invitations WHERE id = ?`, id)
	return scanInvitation(row)
}

// GetByToken returns the pending, unexpired invitation for a token, or nil.
func (s *InvitationStore) GetByToken(token string) (*model.TeamInvitation, error) {
	row := s.db.QueryRow(
		`SELECT `+invitationCols+` FROM team_invitations
		 WHERE token = ? AND status = 'pending' AND expires_at > datetime('now')`,
		token,
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by token: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) ListByTeam(teamID int64) ([]model.TeamInvitation, error) {
	rows, err := s.db.Query(
		`SELECT `+invitationCols+` FROM team_invitations WHERE team_id = ? ORDER BY created_at DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invs []model.TeamInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

// MarkAccepted flips a pending invitation to accepted. Returns false if the
// invitation was not pending (already used or revoked), making acceptance
// single-use even under concurrent requests.
func (s *InvitationStore) MarkAccepted(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE team_invitations SET status = 'accepted', accepted_at = datetime('now')
		 WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark invitation accepted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *InvitationStore) Revoke(id int64) error {
	_, err := s.db.Exec(`DELETE FROM team_invitations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	return nil
}
