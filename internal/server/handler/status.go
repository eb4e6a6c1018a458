package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the process mode and settlement backlog.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	Pending   func() int // armed settlement timers; nil when the scheduler is not running here
}

// GetStatus responds with the current mode, uptime and pending timer count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Pending != nil {
		body["pending_timers"] = h.Pending()
	}
	writeJSON(w, http.StatusOK, body)
}
