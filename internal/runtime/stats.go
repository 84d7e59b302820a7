package runtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/drblury/fluxnotify/internal/runtime/jsoncodec"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
)

// RelayStats is the snapshot served on /notify/stats.
type RelayStats struct {
	Source        string       `json:"source"`
	Durable       string       `json:"durable"`
	Uptime        string       `json:"uptime"`
	Hub           HubStats     `json:"hub"`
	Sessions      SessionStats `json:"sessions"`
	Subscriptions int          `json:"subscriptions"`
	Load          RelayLoad    `json:"load"`
}

type HubStats struct {
	Capacity    int    `json:"capacity"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
}

type SessionStats struct {
	WebSocket int `json:"websocket"`
	SSE       int `json:"sse"`
}

// Stats returns a point-in-time view of the relay.
func (s *Service) Stats() RelayStats {
	stats := RelayStats{
		Source:  s.Conf.SourceKind,
		Durable: s.Conf.ConsumerName,
		Uptime:  time.Since(s.created).Round(time.Second).String(),
		Hub: HubStats{
			Capacity:    s.hub.Capacity(),
			Subscribers: s.hub.Subscribers(),
			Published:   s.hub.Published(),
		},
		Subscriptions: s.registry.Len(),
	}
	for _, sess := range s.sessions.Sessions() {
		switch sess.Transport() {
		case metrics.TransportWebSocket:
			stats.Sessions.WebSocket++
		case metrics.TransportSSE:
			stats.Sessions.SSE++
		}
	}
	stats.Load = s.load.Sample(stats.Hub.Published, stats.Sessions.WebSocket+stats.Sessions.SSE)
	return stats
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if allowed := s.allowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(s.Stats())
	if err != nil {
		s.Logger.Error("Failed to encode stats", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// allowedCORSOrigin returns the Access-Control-Allow-Origin value for the
// request origin, or "" when it is not allowed. An empty allow list admits
// every origin, as the WebSocket upgrade does.
func (s *Service) allowedCORSOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if len(s.Conf.AllowedOrigins) == 0 {
		return "*"
	}
	for _, allowed := range s.Conf.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}
