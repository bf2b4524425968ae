package api

import (
	"net/http"

	"github.com/voxhub/webhook-dispatcher/internal/store"
	ws "github.com/voxhub/webhook-dispatcher/internal/websocket"
)

type StatsHandler struct {
	store *store.PostgresStore
	hub   *ws.Hub
}

func NewStatsHandler(s *store.PostgresStore, hub *ws.Hub) *StatsHandler {
	return &StatsHandler{store: s, hub: hub}
}

// Stats returns aggregated delivery statistics for the dashboard.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetDeliveryStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	type statsResponse struct {
		store.DeliveryStats
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, statsResponse{
		DeliveryStats:    *stats,
		WebSocketClients: h.hub.ClientCount(),
	})
}
