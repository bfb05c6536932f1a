package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

var dealStages = map[string]bool{
	"lead":       true,
	"qualified":  true,
	"proposal":   true,
	"negotiated": true,
	"won":        true,
	"lost":       true,
}

type DealHandler struct {
	dealStore *store.DealStore
	resolver  *tenant.Resolver
	enforcer  *entitlement.Enforcer
	logger    *slog.Logger
}

func NewDealHandler(ds *store.DealStore, resolver *tenant.Resolver, enforcer *entitlement.Enforcer, logger *slog.Logger) *DealHandler {
	return &DealHandler{dealStore: ds, resolver: resolver, enforcer: enforcer, logger: logger}
}

type dealRequest struct {
	Title      string `json:"title"`
	Stage      string `json:"stage"`
	ValueCents int64  `json:"value_cents"`
}

// Create adds a deal for the caller. The quota is team-wide: every
// member's active deals count against the same pool.
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}

	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Stage == "" {
		req.Stage = "lead"
	}
	if !dealStages[req.Stage] {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}
	if req.ValueCents < 0 {
		writeError(w, http.StatusBadRequest, "value_cents must not be negative")
		return
	}

	if res := h.enforcer.CheckLimit(tc.Team.ID, entitlement.DimensionDeals, 0); !res.Allowed {
		writeLimitDenied(w, res)
		return
	}

	deal, err := h.dealStore.Create(auth.UserID(r.Context()), req.Title, req.Stage, req.ValueCents)
	if err != nil {
		h.logger.Error("create deal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create deal")
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// List returns the caller's own deals. Deals are per-user; teammates never
// see each other's pipelines.
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	deals, err := h.dealStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deals")
		return
	}
	writeJSON(w, http.StatusOK, deals)
}

// loadOwn fetches the deal and verifies the caller owns it. Missing and
// foreign deals both answer 404.
func (h *DealHandler) loadOwn(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deal id")
		return 0, false
	}
	deal, err := h.dealStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	if deal == nil || deal.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "deal not found")
		return 0, false
	}
	return id, true
}

type dealStageRequest struct {
	Stage string `json:"stage"`
}

func (h *DealHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loadOwn(w, r)
	if !ok {
		return
	}

	var req dealStageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !dealStages[req.Stage] {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}

	deal, err := h.dealStore.UpdateStage(id, req.Stage)
	if err != nil {
		h.logger.Error("update deal stage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update deal")
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loadOwn(w, r)
	if !ok {
		return
	}

	if err := h.dealStore.Delete(id); err != nil {
		h.logger.Error("delete deal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete deal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
