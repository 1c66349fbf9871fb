package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/orchestrator"
	"github.com/rickgao/marketsync/internal/version"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// healthSources are the components /health reports on. Nil fields are
// skipped.
type healthSources struct {
	Store    any // Checked when it implements Ping
	Feed     interface{ Stats() connection.ManagerStats }
	Catalog  interface{ Len() int; LastSyncAt() time.Time }
	Sync     interface{ Stats() orchestrator.Stats }
	Realtime interface{ Sessions() int }
}

// newHTTPHandler serves health, metrics and subscriber connections on one
// mux.
func newHTTPHandler(metricsPath, subscribePath string, subscribers http.Handler, src healthSources) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(src))
	mux.Handle(metricsPath, metrics.Handler())
	if subscribers != nil {
		mux.Handle(subscribePath, subscribers)
	}
	return mux
}

func healthHandler(src healthSources) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		// Check database
		if p, ok := src.Store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["store"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["store"] = "connected"
			}
		}

		if src.Feed != nil {
			st := src.Feed.Stats()
			health.Components["feed"] = map[string]any{
				"connected":     st.Connected,
				"subscriptions": st.Subscriptions,
				"reconnects":    st.Reconnects,
				"received":      st.Received,
				"stalled":       st.Stalled,
			}
			if !st.Connected && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		if src.Catalog != nil {
			n := src.Catalog.Len()
			c := map[string]any{"items": n}
			if at := src.Catalog.LastSyncAt(); !at.IsZero() {
				c["last_sync"] = at.UTC().Format(time.RFC3339)
			}
			health.Components["catalog"] = c
			if n == 0 && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		if src.Sync != nil {
			st := src.Sync.Stats()
			health.Components["sync"] = map[string]any{
				"tasks":     st.Tasks,
				"failures":  st.Failures,
				"in_flight": st.InFlight,
				"dropped":   st.Dropped,
			}
		}

		if src.Realtime != nil {
			health.Components["subscribers"] = src.Realtime.Sessions()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
