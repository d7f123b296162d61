package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/classdesk/internal/auth"
)

// HandleWebSocket upgrades identified requests and streams the caller's
// calendar and notes. originPatterns lists extra hosts allowed to connect
// cross-origin; same-origin requests are always accepted.
func HandleWebSocket(hub *Hub, events EventFeed, notes NoteFeed, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := auth.SubjectID(r.Context())
		if owner == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		NewClient(hub, conn, owner).Run(r.Context(), events, notes)
	}
}
