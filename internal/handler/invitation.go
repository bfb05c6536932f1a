package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/email"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

type InvitationHandler struct {
	invitationStore *store.InvitationStore
	teamStore       *store.TeamStore
	userStore       *store.UserStore
	resolver        *tenant.Resolver
	enforcer        *entitlement.Enforcer
	emailClient     *email.Client
	logger          *slog.Logger
}

func NewInvitationHandler(
	is *store.InvitationStore,
	ts *store.TeamStore,
	us *store.UserStore,
	resolver *tenant.Resolver,
	enforcer *entitlement.Enforcer,
	ec *email.Client,
	logger *slog.Logger,
) *InvitationHandler {
	return &InvitationHandler{
		invitationStore: is,
		teamStore:       ts,
		userStore:       us,
		resolver:        resolver,
		enforcer:        enforcer,
		emailClient:     ec,
		logger:          logger,
	}
}

type createInvitationRequest struct {
	Email       string                 `json:"email"`
	Permissions *model.PermissionFlags `json:"permissions"`
}

// Create issues an invitation. The member quota is checked at issuance so a
// full team cannot hand out invitations it has no seats for.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().InviteMembers {
		writeError(w, http.StatusForbidden, "invite_members permission required")
		return
	}

	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	if res := h.enforcer.CheckLimit(tc.Team.ID, entitlement.DimensionMembers, 0); !res.Allowed {
		writeLimitDenied(w, res)
		return
	}

	inv, err := h.invitationStore.Create(tc.Team.ID, auth.UserID(r.Context()), req.Email, req.Permissions)
	if err != nil {
		h.logger.Error("create invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invitation")
		return
	}

	inviter, err := h.userStore.GetByID(auth.UserID(r.Context()))
	inviterName := "A teammate"
	if err == nil && inviter != nil {
		inviterName = inviter.Name
	}
	if err := h.emailClient.SendInvitation(req.Email, inv.Token, tc.Team.Name, inviterName); err != nil {
		// The invitation stands; the token can still be shared manually.
		h.logger.Error("send invitation email", "email", req.Email, "error", err)
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().InviteMembers {
		writeError(w, http.StatusForbidden, "invite_members permission required")
		return
	}

	invitations, err := h.invitationStore.ListByTeam(tc.Team.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	if !tc.Permissions().InviteMembers {
		writeError(w, http.StatusForbidden, "invite_members permission required")
		return
	}

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invitation id")
		return
	}

	invitations, err := h.invitationStore.ListByTeam(tc.Team.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load invitations")
		return
	}
	found := false
	for _, inv := range invitations {
		if inv.ID == id {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}

	if err := h.invitationStore.Revoke(id); err != nil {
		h.logger.Error("revoke invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke invitation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// Accept joins the caller to the inviting team. Because every user gets an
// auto-provisioned team of their own, acceptance allows discarding that
// placeholder when it is still empty; a team with members or an existing
// membership elsewhere blocks the join.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	inv, err := h.invitationStore.GetByToken(req.Token)
	if err != nil {
		h.logger.Error("accept invitation lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "invitation not found or expired")
		return
	}

	userID := auth.UserID(r.Context())
	user, err := h.userStore.GetByID(userID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		writeError(w, http.StatusForbidden, "this invitation was issued to a different email")
		return
	}

	existing, err := h.teamStore.GetMemberByUserID(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "you already belong to a team")
		return
	}

	// The caller may own an auto-provisioned placeholder. It can only be
	// discarded while empty.
	owned, err := h.teamStore.GetByOwnerID(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if owned != nil {
		count, err := h.teamStore.CountMembers(owned.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if count > 0 || owned.StripeCustomerID != nil {
			writeError(w, http.StatusConflict, "you already own a team with members or billing history")
			return
		}
	}

	// Claim the token before any side effects; a concurrent accept of the
	// same invitation loses here.
	claimed, err := h.invitationStore.MarkAccepted(inv.ID)
	if err != nil {
		h.logger.Error("accept invitation claim", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !claimed {
		writeError(w, http.StatusConflict, "invitation is no longer valid")
		return
	}

	perms := model.PermissionFlags{CanCreateEvents: true, CanViewAllEvents: true}
	if inv.Permissions != nil {
		perms = *inv.Permissions
	}
	member, err := h.teamStore.AddMember(inv.TeamID, userID, string(tenant.RoleMember), perms)
	if err != nil {
		h.logger.Error("accept invitation add member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join team")
		return
	}

	if owned != nil {
		if err := h.teamStore.Delete(owned.ID); err != nil {
			// Membership already succeeded; the stale placeholder is
			// harmless but worth flagging.
			h.logger.Warn("discard placeholder team", "team_id", owned.ID, "error", err)
		}
	}

	team, err := h.teamStore.GetByID(inv.TeamID)
	if err != nil || team == nil {
		writeError(w, http.StatusInternalServerError, "failed to load team")
		return
	}

	h.logger.Info("invitation accepted",
		"invitation_id", inv.ID, "team_id", inv.TeamID, "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]any{"team": team, "member": member})
}
