package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aisleworks/aisle/internal/model"
)

// ErrOwnerPermissions is returned when a caller attempts to modify the
// permission row of a team owner. Owners have implicit full access and
// their permissions cannot be stored or revoked.
var ErrOwnerPermissions = errors.New("owner permissions are immutable")

type TeamStore struct {
	db *sql.DB
}

func NewTeamStore(db *sql.DB) *TeamStore {
	return &TeamStore{db: db}
}

func scanTeam(scanner interface{ Scan(...any) error }) (*model.Team, error) {
	var t model.Team
	var custID sql.NullString
	err := scanner.Scan(&t.ID, &t.Name, &t.OwnerID, &custID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if custID.Valid {
		t.StripeCustomerID = &custID.String
	}
	return &t, nil
}

func scanTeamMember(scanner interface{ Scan(...any) error }) (*model.TeamMember, error) {
	var m model.TeamMember
	var flags [8]int
	err := scanner.Scan(
		&m.ID, &m.TeamID, &m.UserID, &m.Role,
		&flags[0], &flags[1], &flags[2], &flags[3],
		&flags[4], &flags[5], &flags[6], &flags[7],
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CanManageTeam = flags[0] != 0
	m.CanManageBilling = flags[1] != 0
	m.CanViewBilling = flags[2] != 0
	m.CanManageSettings = flags[3] != 0
	m.CanCreateEvents = flags[4] != 0
	m.CanViewAllEvents = flags[5] != 0
	m.CanDeleteEvents = flags[6] != 0
	m.CanInviteMembers = flags[7] != 0
	return &m, nil
}

const teamCols = `id, name, owner_id, stripe_customer_id, created_at, updated_at`
const teamMemberCols = `id, team_id, user_id, role,
	can_manage_team, can_manage_billing, can_view_billing, can_manage_settings,
	can_create_events, can_view_all_events, can_delete_events, can_invite_members,
	created_at, updated_at`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// normalize enforces the permission write invariant: managing billing
// implies viewing billing.
func normalize(p model.PermissionFlags) model.PermissionFlags {
	if p.CanManageBilling {
		p.CanViewBilling = true
	}
	return p
}

// Create inserts a new team owned by ownerID. The unique constraint on
// owner_id makes concurrent creation for the same user fail for all but
// one writer.
func (s *TeamStore) Create(name string, ownerID int64) (*model.Team, error) {
	result, err := s.db.Exec(`INSERT INTO teams (name, owner_id) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert team: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TeamStore) GetByID(id int64) (*model.Team, error) {
	row := s.db.QueryRow(`SELECT `+teamCols+` FROM teams WHERE id = ?`, id)
	t, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

func (s *TeamStore) GetByOwnerID(ownerID int64) (*model.Team, error) {
	row := s.db.QueryRow(`SELECT `+teamCols+` FROM teams WHERE owner_id = ?`, ownerID)
	t, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team by owner: %w", err)
	}
	return t, nil
}

func (s *TeamStore) UpdateName(id int64, name string) (*model.Team, error) {
	_, err := s.db.Exec(
		`UPDATE teams SET name = ?, updated_at = datetime('now') WHERE id = ?`,
		name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update team name: %w", err)
	}
	return s.GetByID(id)
}

func (s *TeamStore) UpdateStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE teams SET stripe_customer_id = ?, updated_at = datetime('now') WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", err)
	}
	return nil
}

// Delete removes a team. Events referencing it become personal via
// ON DELETE SET NULL; membership rows cascade.
func (s *TeamStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return nil
}

// AddMember inserts a membership row. The unique constraint on user_id
// rejects a second membership for the same user.
func (s *TeamStore) AddMember(teamID, userID int64, role string, perms model.PermissionFlags) (*model.TeamMember, error) {
	perms = normalize(perms)
	result, err := s.db.Exec(
		`INSERT INTO team_members (team_id, user_id, role,
			can_manage_team, can_manage_billing, can_view_billing, can_manage_settings,
			can_create_events, can_view_all_events, can_delete_events, can_invite_members)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		teamID, userID, role,
		boolToInt(perms.CanManageTeam), boolToInt(perms.CanManageBilling),
		boolToInt(perms.CanViewBilling), boolToInt(perms.CanManageSettings),
		boolToInt(perms.CanCreateEvents), boolToInt(perms.CanViewAllEvents),
		boolToInt(perms.CanDeleteEvents), boolToInt(perms.CanInviteMembers),
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+teamMemberCols+` FROM team_members WHERE id = ?`, id)
	return scanTeamMember(row)
}

// GetMemberByUserID returns the membership row for a user across all teams,
// or nil. A user has at most one row (unique on user_id).
func (s *TeamStore) GetMemberByUserID(userID int64) (*model.TeamMember, error) {
	row := s.db.QueryRow(`SELECT `+teamMemberCols+` FROM team_members WHERE user_id = ?`, userID)
	m, err := scanTeamMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by user: %w", err)
	}
	return m, nil
}

func (s *TeamStore) GetMember(teamID, userID int64) (*model.TeamMember, error) {
	row := s.db.QueryRow(
		`SELECT `+teamMemberCols+` FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	)
	m, err := scanTeamMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *TeamStore) ListMembers(teamID int64) ([]model.TeamMember, error) {
	rows, err := s.db.Query(
		`SELECT `+teamMemberCols+` FROM team_members WHERE team_id = ? ORDER BY created_at ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.TeamMember
	for rows.Next() {
		m, err := scanTeamMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// MemberUserIDs returns the user ids of all members of the team, excluding
// the owner (who has no membership row).
func (s *TeamStore) MemberUserIDs(teamID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT user_id FROM team_members WHERE team_id = ?`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list member user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TeamStore) CountMembers(teamID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM team_members WHERE team_id = ?`, teamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// UpdateMemberPermissions overwrites the stored permission flags for a
// member. Rows flagged as owner are rejected with ErrOwnerPermissions and
// left untouched.
func (s *TeamStore) UpdateMemberPermissions(teamID, userID int64, perms model.PermissionFlags) (*model.TeamMember, error) {
	existing, err := s.GetMember(teamID, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.Role == "owner" {
		return nil, ErrOwnerPermissions
	}

	perms = normalize(perms)
	_, err = s.db.Exec(
		`UPDATE team_members SET
			can_manage_team = ?, can_manage_billing = ?, can_view_billing = ?, can_manage_settings = ?,
			can_create_events = ?, can_view_all_events = ?, can_delete_events = ?, can_invite_members = ?,
			updated_at = datetime('now')
		 WHERE team_id = ? AND user_id = ?`,
		boolToInt(perms.CanManageTeam), boolToInt(perms.CanManageBilling),
		boolToInt(perms.CanViewBilling), boolToInt(perms.CanManageSettings),
		boolToInt(perms.CanCreateEvents), boolToInt(perms.CanViewAllEvents),
		boolToInt(perms.CanDeleteEvents), boolToInt(perms.CanInviteMembers),
		teamID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member permissions: %w", err)
	}
	return s.GetMember(teamID, userID)
}

func (s *TeamStore) RemoveMember(teamID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}
