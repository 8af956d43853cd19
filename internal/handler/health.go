package handler

import (
	"net/http"

	"github.com/polychat/chat-platform/internal/bus"
	"github.com/polychat/chat-platform/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db        *store.DB
	busClient *bus.Client
}

// NewHealthHandler creates a new health handler. busClient may be nil on
// single-instance deployments.
func NewHealthHandler(db *store.DB, busClient *bus.Client) *HealthHandler {
	return &HealthHandler{
		db:        db,
		busClient: busClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store not open",
		})
		return
	}
	if h.busClient != nil && !h.busClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
