package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voxhub/webhook-dispatcher/internal/store"
)

type LogHandler struct {
	store *store.PostgresStore
}

func NewLogHandler(s *store.PostgresStore) *LogHandler {
	return &LogHandler{store: s}
}

func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	webhookID := r.URL.Query().Get("webhook_id")
	status := r.URL.Query().Get("status")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := h.store.ListLogs(r.Context(), webhookID, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery logs")
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	log, err := h.store.GetLog(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery log")
		return
	}
	if log == nil {
		respondError(w, http.StatusNotFound, "delivery log not found")
		return
	}

	respondJSON(w, http.StatusOK, log)
}
