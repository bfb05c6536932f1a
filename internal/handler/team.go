package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

type TeamHandler struct {
	teamStore *store.TeamStore
	userStore *store.UserStore
	resolver  *tenant.Resolver
	logger    *slog.Logger
}

func NewTeamHandler(ts *store.TeamStore, us *store.UserStore, resolver *tenant.Resolver, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teamStore: ts, userStore: us, resolver: resolver, logger: logger}
}

// Get returns the caller's team with their derived role and permissions.
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"team":        tc.Team,
		"role":        tc.Role(),
		"permissions": tc.Permissions(),
	})
}

type updateTeamRequest struct {
	Name string `json:"name"`
}

func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageTeam {
		writeError(w, http.StatusForbidden, "manage_team permission required")
		return
	}

	var req updateTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	team, err := h.teamStore.UpdateName(tc.Team.ID, req.Name)
	if err != nil {
		h.logger.Error("update team", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update team")
		return
	}
	writeJSON(w, http.StatusOK, team)
}

type memberView struct {
	model.TeamMember
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ListMembers returns the owner plus all member rows, with user identity
// joined in.
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}

	members, err := h.teamStore.ListMembers(tc.Team.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	views := make([]memberView, 0, len(members))
	for _, m := range members {
		v := memberView{TeamMember: m}
		if u, err := h.userStore.GetByID(m.UserID); err == nil && u != nil {
			v.Email = u.Email
			v.Name = u.Name
		}
		views = append(views, v)
	}

	owner, err := h.userStore.GetByID(tc.Team.OwnerID)
	if err != nil || owner == nil {
		writeError(w, http.StatusInternalServerError, "failed to load owner")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner": map[string]any{
			"user_id": owner.ID,
			"email":   owner.Email,
			"name":    owner.Name,
			"role":    tenant.RoleOwner,
		},
		"members": views,
	})
}

type updatePermissionsRequest struct {
	Permissions model.PermissionFlags `json:"permissions"`
}

// UpdateMemberPermissions rewrites a member's stored permission flags.
// Owner permissions are immutable and answer 400.
func (h *TeamHandler) UpdateMemberPermissions(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageTeam {
		writeError(w, http.StatusForbidden, "manage_team permission required")
		return
	}

	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updatePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	member, err := h.teamStore.UpdateMemberPermissions(tc.Team.ID, userID, req.Permissions)
	if err != nil {
		if errors.Is(err, store.ErrOwnerPermissions) {
			writeError(w, http.StatusBadRequest, "owner permissions are immutable")
			return
		}
		h.logger.Error("update member permissions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update permissions")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// RemoveMember removes a member from the team. The owner cannot be removed.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().ManageTeam {
		writeError(w, http.StatusForbidden, "manage_team permission required")
		return
	}

	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if userID == tc.Team.OwnerID {
		writeError(w, http.StatusBadRequest, "the owner cannot be removed")
		return
	}

	if err := h.teamStore.RemoveMember(tc.Team.ID, userID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
