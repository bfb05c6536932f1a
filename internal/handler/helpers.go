package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/tenant"
)

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseIDParam extracts a positive integer path parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

// resolveTeam loads the caller's team context, auto-provisioning on first
// touch. Writes the error response and returns nil when resolution fails.
func resolveTeam(w http.ResponseWriter, r *http.Request, resolver *tenant.Resolver) *tenant.TeamContext {
	tc, err := resolver.Resolve(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "team unavailable")
		return nil
	}
	return tc
}

// writeLimitDenied answers a quota denial with 402 and enough context for
// the client to render an upgrade prompt.
func writeLimitDenied(w http.ResponseWriter, res entitlement.LimitResult) {
	writeJSON(w, http.StatusPaymentRequired, map[string]any{
		"error":         "limit_reached",
		"current":       res.Current,
		"limit":         res.Limit,
		"plan":          res.Plan,
		"required_plan": res.RequiredPlan,
	})
}

func writeFeatureDenied(w http.ResponseWriter, res entitlement.FeatureResult) {
	writeJSON(w, http.StatusPaymentRequired, map[string]any{
		"error":         "feature_not_available",
		"plan":          res.Plan,
		"required_plan": res.RequiredPlan,
	})
}
