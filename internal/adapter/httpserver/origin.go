package httpserver

import (
	"log/slog"
	"net/http"
	"strings"
)

// NewCheckOrigin returns a websocket origin check. An empty allow-list or a
// "*" entry accepts every origin. Requests without an Origin header come from
// non-browser clients and are always accepted.
func NewCheckOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(strings.ToLower(origin), "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.TrimSuffix(strings.ToLower(origin), "/")]; ok {
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
