package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxhub/webhook-dispatcher/internal/domain"
	"github.com/voxhub/webhook-dispatcher/internal/engine"
	"github.com/voxhub/webhook-dispatcher/internal/store"
)

// CacheInvalidator evicts a cached configuration after an edit.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id string)
}

type WebhookHandler struct {
	store   *store.PostgresStore
	cache   CacheInvalidator
	tracker *engine.HealthTracker
}

func NewWebhookHandler(s *store.PostgresStore, cache CacheInvalidator, tracker *engine.HealthTracker) *WebhookHandler {
	return &WebhookHandler{store: s, cache: cache, tracker: tracker}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.TargetURL == "" {
		respondError(w, http.StatusBadRequest, "target_url is required")
		return
	}

	cfg, err := h.store.CreateWebhook(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateWebhookResponse{
		ID:        cfg.ID,
		Name:      cfg.Name,
		TargetURL: cfg.TargetURL,
		Secret:    cfg.Secret,
	})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListWebhooks(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	cfg.Secret = ""
	cfg.TriggerToken = ""
	respondJSON(w, http.StatusOK, cfg)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.store.UpdateWebhook(r.Context(), id, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update webhook")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}

	cfg.Secret = ""
	cfg.TriggerToken = ""
	respondJSON(w, http.StatusOK, cfg)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteWebhook(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health reports the configuration alongside its endpoint failure streak.
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	type healthResponse struct {
		WebhookID       string                `json:"webhook_id"`
		Name            string                `json:"name"`
		TargetURL       string                `json:"target_url"`
		IsActive        bool                  `json:"is_active"`
		TotalCalls      int64                 `json:"total_calls"`
		SuccessfulCalls int64                 `json:"successful_calls"`
		FailedCalls     int64                 `json:"failed_calls"`
		Endpoint        engine.EndpointHealth `json:"endpoint"`
	}

	respondJSON(w, http.StatusOK, healthResponse{
		WebhookID:       cfg.ID,
		Name:            cfg.Name,
		TargetURL:       cfg.TargetURL,
		IsActive:        cfg.IsActive,
		TotalCalls:      cfg.TotalCalls,
		SuccessfulCalls: cfg.SuccessfulCalls,
		FailedCalls:     cfg.FailedCalls,
		Endpoint:        h.tracker.State(r.Context(), id),
	})
}
