package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxhub/webhook-dispatcher/internal/dispatch"
	"github.com/voxhub/webhook-dispatcher/internal/engine"
)

// TriggerTokenHeader carries the optional per-configuration shared secret
// that authenticates inbound triggers. Configurations without a token fall
// back to the capability-URL model.
const TriggerTokenHeader = "X-Webhook-Token"

// TriggerHandler serves the inbound trigger endpoint. limiter may be nil.
type TriggerHandler struct {
	webhooks   dispatch.Store
	dispatcher *dispatch.Dispatcher
	limiter    *engine.RateLimiter
	logger     *slog.Logger
}

func NewTriggerHandler(webhooks dispatch.Store, dispatcher *dispatch.Dispatcher, limiter *engine.RateLimiter, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{
		webhooks:   webhooks,
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger,
	}
}

type triggerResponse struct {
	Success        bool    `json:"success"`
	Filtered       bool    `json:"filtered,omitempty"`
	WebhookID      string  `json:"webhook_id"`
	WebhookName    string  `json:"webhook_name"`
	ResponseStatus int     `json:"response_status"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	Error          *string `json:"error"`
	ForwardedTo    string  `json:"forwarded_to"`
}

// Handle runs one trigger. Lookup failures are reported synchronously with
// no side effects; exhausted retries still produce a structured response,
// just with a 500 status.
func (h *TriggerHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractWebhookID(r)
	if id == "" {
		respondError(w, http.StatusBadRequest, "webhook id is required")
		return
	}

	ctx := r.Context()

	cfg, err := h.webhooks.GetActiveWebhook(ctx, id)
	if err != nil {
		h.logger.Error("webhook lookup failed", "webhook_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "webhook not found or inactive")
		return
	}

	if cfg.TriggerToken != "" {
		token := r.Header.Get(TriggerTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.TriggerToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid trigger token")
			return
		}
	}

	if h.limiter != nil && cfg.RateLimitPerSecond > 0 &&
		!h.limiter.Allow(ctx, cfg.ID, cfg.RateLimitPerSecond) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.dispatcher.Dispatch(ctx, cfg, dispatch.ParseTrigger(r))
	if err != nil {
		h.logger.Error("dispatch failed", "webhook_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}

	var errMsg *string
	if result.Error != "" {
		errMsg = &result.Error
	}

	respondJSON(w, status, triggerResponse{
		Success:        result.Success,
		Filtered:       result.Filtered,
		WebhookID:      result.WebhookID,
		WebhookName:    result.WebhookName,
		ResponseStatus: result.ResponseStatus,
		ResponseTimeMs: result.ResponseTimeMs,
		Error:          errMsg,
		ForwardedTo:    result.ForwardedTo,
	})
}

// extractWebhookID takes the last path segment as the configuration id.
func extractWebhookID(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "webhook-handler" {
		return ""
	}
	return last
}
