package api

import (
	"context"
	"net/http"
	"time"

	"influencegen/internal/buildinfo"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler runs every registered readiness check with a short timeout.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DebugHandler reports build info and a secret-free view of the config.
func (s *Server) DebugHandler(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"addr":               c.Addr,
			"namespace":          c.Namespace,
			"system":             c.System,
			"callbackPath":       s.CallbackPath(),
			"signatureHeader":    s.Callbacks.Header(),
			"authMode":           s.Auth.Mode(),
			"paramsCacheTtl":     c.ParamsTTL.String(),
			"rateRps":            c.Callback.RateRPS,
			"rateBurst":          c.Callback.RateBurst,
			"webhookMaxAttempts": c.Webhook.MaxAttempts,
			"hasDatabaseUrl":     c.DatabaseURL != "",
			"hasRedisUrl":        c.RedisURL != "",
		},
	})
}
