package tenant

import "github.com/aisleworks/aisle/internal/model"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// PermissionSet is the concrete capability set derived for a user within a
// team. Unlike model.PermissionFlags it is never stored; it is computed from
// role plus stored flags on every resolution.
type PermissionSet struct {
	ManageTeam     bool `json:"can_manage_team"`
	ManageBilling  bool `json:"can_manage_billing"`
	ViewBilling    bool `json:"can_view_billing"`
	ManageSettings bool `json:"can_manage_settings"`
	CreateEvents   bool `json:"can_create_events"`
	ViewAllEvents  bool `json:"can_view_all_events"`
	DeleteEvents   bool `json:"can_delete_events"`
	InviteMembers  bool `json:"can_invite_members"`
}

func allPermissions() PermissionSet {
	return PermissionSet{
		ManageTeam:     true,
		ManageBilling:  true,
		ViewBilling:    true,
		ManageSettings: true,
		CreateEvents:   true,
		ViewAllEvents:  true,
		DeleteEvents:   true,
		InviteMembers:  true,
	}
}

// Derive computes the capability set for a role and its stored flags.
//
// Owners get every permission unconditionally; stored flags cannot revoke
// them. Admins get manage-team and view-billing forced on, with the
// remaining flags governed by storage. Members get exactly their stored
// flags, defaulting to create-events and view-all-events when no flags
// were ever stored. Managing billing always implies viewing billing.
func Derive(role Role, stored *model.PermissionFlags) PermissionSet {
	if role == RoleOwner {
		return allPermissions()
	}

	var ps PermissionSet
	if stored != nil {
		ps = PermissionSet{
			ManageTeam:     stored.CanManageTeam,
			ManageBilling:  stored.CanManageBilling,
			ViewBilling:    stored.CanViewBilling,
			ManageSettings: stored.CanManageSettings,
			CreateEvents:   stored.CanCreateEvents,
			ViewAllEvents:  stored.CanViewAllEvents,
			DeleteEvents:   stored.CanDeleteEvents,
			InviteMembers:  stored.CanInviteMembers,
		}
	} else {
		ps = PermissionSet{CreateEvents: true, ViewAllEvents: true}
	}

	if role == RoleAdmin {
		ps.ManageTeam = true
		ps.ViewBilling = true
	}
	if ps.ManageBilling {
		ps.ViewBilling = true
	}
	return ps
}

// Membership is a user's relationship to a team. It has two structurally
// different variants: ownership, recorded only by teams.owner_id with no
// stored row, and a member row with stored flags. Both answer the same
// permission queries so callers never branch on a nullable row.
type Membership interface {
	TeamID() int64
	UserID() int64
	Role() Role
	Permissions() PermissionSet
}

type ownership struct {
	teamID int64
	userID int64
}

func (o ownership) TeamID() int64              { return o.teamID }
func (o ownership) UserID() int64              { return o.userID }
func (o ownership) Role() Role                 { return RoleOwner }
func (o ownership) Permissions() PermissionSet { return allPermissions() }

type memberRow struct {
	row model.TeamMember
}

func (m memberRow) TeamID() int64 { return m.row.TeamID }
func (m memberRow) UserID() int64 { return m.row.UserID }
func (m memberRow) Role() Role    { return Role(m.row.Role) }
func (m memberRow) Permissions() PermissionSet {
	return Derive(Role(m.row.Role), &m.row.PermissionFlags)
}

// OwnerMembership synthesizes the ownership variant.
func OwnerMembership(teamID, userID int64) Membership {
	return ownership{teamID: teamID, userID: userID}
}

// MemberOf wraps a stored membership row.
func MemberOf(row model.TeamMember) Membership {
	return memberRow{row: row}
}
