package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness and, when a database is wired, whether it answers.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "database": "skipped"}
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("health: database ping failed")
			body["status"], body["database"] = "degraded", "unreachable"
			a.json(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	a.json(w, http.StatusOK, body)
}
