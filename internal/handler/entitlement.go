package handler

import (
	"net/http"

	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/tenant"
)

type EntitlementHandler struct {
	enforcer *entitlement.Enforcer
	resolver *tenant.Resolver
}

func NewEntitlementHandler(enforcer *entitlement.Enforcer, resolver *tenant.Resolver) *EntitlementHandler {
	return &EntitlementHandler{enforcer: enforcer, resolver: resolver}
}

// Summary reports every quota and feature gate for the caller's team in
// one response, for the client's usage dashboard.
func (h *EntitlementHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}
	writeJSON(w, http.StatusOK, h.enforcer.Summarize(tc.Team.ID))
}
