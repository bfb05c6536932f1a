package websocket

import (
	"log"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/tenant"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and joins them to the caller's team room. Runs behind
// RequireAuth, so the user id is always present.
func HandleWebSocket(hub *Hub, resolver *tenant.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, err := resolver.Resolve(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			http.Error(w, "team unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			log.Printf("websocket: accept: %v", err)
			return
		}

		client := NewClient(hub, conn, tc.Team.ID)
		client.Run(r.Context())
	}
}
