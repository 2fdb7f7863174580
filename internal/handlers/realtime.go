package handlers

import (
	"net/http"

	"github.com/steward-platform/apiserver/internal/realtime"
)

// Socket upgrades authenticated requests to real-time connections.
func Socket(server *realtime.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}
		server.Serve(w, r, actor)
	}
}
