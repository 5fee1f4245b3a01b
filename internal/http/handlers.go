package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"despesas/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports not ready when templates are missing or the backend
// does not answer. A failed snapshot load alone is reported but does not
// fail readiness; the page still renders the last data it has.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name, msg string) {
		checks[name] = "failed: " + msg
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if s.pinger == nil {
		checks["backend"] = "not_configured"
	} else if err := s.pinger.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		fail("backend", err.Error())
	} else {
		checks["backend"] = "ok"
	}

	snap := s.store.Status()
	snapshot := map[string]any{
		"loaded":   snap.Loaded(),
		"version":  snap.Version,
		"expenses": len(snap.Expenses),
	}
	if !snap.LoadedAt.IsZero() {
		snapshot["loaded_at"] = snap.LoadedAt.Format(time.RFC3339)
	}
	if snap.LoadErr != nil {
		snapshot["last_error"] = snap.LoadErr.Error()
	}
	checks["snapshot"] = snapshot

	hits, misses := s.results.Stats()
	checks["cache"] = map[string]any{
		"entries": s.results.Size(),
		"hits":    hits,
		"misses":  misses,
	}

	rl := s.limiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": rl.ClientCount,
		"limited":        rl.TotalHits,
	}

	if s.hub != nil {
		checks["websocket_clients"] = s.hub.Clients()
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleWebsocket upgrades to the live refresh socket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	s.hub.ServeHTTP(w, r)
}
