package handlers

import (
	"context"
	"net/http"
	"time"

	"finlern/internal/apierror"
	"finlern/internal/ratelimit"
)

type healthResponse struct {
	Status      string           `json:"status"`
	RateLimiter ratelimit.Health `json:"rateLimiter"`
	Database    string           `json:"database"`
}

// Health reports liveness plus the state of the limiter and database. It
// always answers 200; degraded components are named in the body.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: ratelimit.StatusOK, Database: "disabled"}

	if h.limiter != nil {
		resp.RateLimiter = h.limiter.Health()
		if resp.RateLimiter.Status != ratelimit.StatusOK {
			resp.Status = ratelimit.StatusDegraded
		}
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn(r.Context(), err, "health: database ping failed")
			resp.Database = "unavailable"
			resp.Status = ratelimit.StatusDegraded
		} else {
			resp.Database = ratelimit.StatusOK
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	apierror.WriteJSON(w, http.StatusOK, resp)
}
