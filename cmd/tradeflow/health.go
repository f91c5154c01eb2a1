package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/tradeflow/internal/connection"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/version"
)

// newHealthHandler creates the HTTP handler for health checks and diagnostics.
func newHealthHandler(manager connection.Manager, feeds *feedTracker, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]interface{}),
		}

		live := make(map[model.Exchange]connection.ConnStats)
		for _, s := range manager.Stats() {
			live[s.Exchange] = s
		}

		// Connections are never re-established, so a missing one is fatal
		for _, f := range feeds.snapshot() {
			s, ok := live[f.Exchange]
			switch {
			case !ok:
				health.Status = "unhealthy"
				health.Components[f.Exchange.String()] = "disconnected"
			case s.State != connection.Open.String():
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components[f.Exchange.String()] = s.State
			default:
				health.Components[f.Exchange.String()] = map[string]interface{}{
					"state":    s.State,
					"drift_ms": s.DriftMs,
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/feeds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connections": manager.Stats(),
			"feeds":       feeds.snapshot(),
		})
	})

	// GET  /retention?exchange=gdax
	// POST /retention?exchange=gdax&spec=1h
	mux.HandleFunc("/retention", func(w http.ResponseWriter, r *http.Request) {
		ex, err := model.ParseExchange(r.URL.Query().Get("exchange"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
		case http.MethodPost, http.MethodPut:
			spec := r.URL.Query().Get("spec")
			if err := manager.SetRetention(ex, spec); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Info("retention updated via http", "exchange", ex.String(), "spec", spec)
		default:
			w.Header().Set("Allow", "GET, POST, PUT")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"exchange":  ex.String(),
			"retention": manager.Retention(ex),
		})
	})

	return mux
}
