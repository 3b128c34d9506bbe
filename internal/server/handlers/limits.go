package handlers

import (
	"net/http"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
)

// LimitsResponse reports the outbound scheduler state.
type LimitsResponse struct {
	engine.Stats
	Paused    bool      `json:"paused"`
	Timestamp time.Time `json:"timestamp"`
}

// LimitsHandler handles GET /v1/limits.
func LimitsHandler(snapshot func() engine.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := snapshot()
		now := time.Now().UTC()
		writeJSON(w, http.StatusOK, LimitsResponse{
			Stats:     stats,
			Paused:    stats.Paused(now),
			Timestamp: now,
		})
	}
}
