package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// NewUpgrader returns an upgrader that accepts requests without an Origin
// header (non-browser clients) and browser requests from allowedOrigins.
// A "*" entry allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}
