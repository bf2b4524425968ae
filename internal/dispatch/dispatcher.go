package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/voxhub/webhook-dispatcher/internal/domain"
	"github.com/voxhub/webhook-dispatcher/internal/engine"
	"github.com/voxhub/webhook-dispatcher/internal/metrics"
	ws "github.com/voxhub/webhook-dispatcher/internal/websocket"
)

const (
	// DefaultRetryAttempts applies when a configuration leaves the attempt
	// count unset.
	DefaultRetryAttempts = 3
	// MaxRetryAttempts bounds the exponential backoff schedule to something
	// that fits a request-scoped wall-clock budget.
	MaxRetryAttempts = 10

	defaultTimeout       = 30 * time.Second
	maxResponseBodyChars = 1000
)

// Store is what the dispatcher needs from its datastore collaborator.
type Store interface {
	GetActiveWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error)
	RecordOutcome(ctx context.Context, rec domain.DeliveryRecord) error
}

// Result describes what happened to a trigger, returned verbatim to the
// inbound caller.
type Result struct {
	Success        bool
	Filtered       bool
	WebhookID      string
	WebhookName    string
	ResponseStatus int
	ResponseTimeMs int64
	Error          string
	ForwardedTo    string
}

// Dispatcher delivers signed envelopes to configured target URLs with
// bounded retries and durably records each trigger's outcome. It holds no
// state between triggers; everything is reconstructed from the configuration
// row each time.
type Dispatcher struct {
	store      Store
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	hub        *ws.Hub
	health     *engine.HealthTracker
	maxBackoff time.Duration

	// sleep is replaceable so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration)
}

// NewDispatcher wires a dispatcher. metrics, hub, and health may be nil.
func NewDispatcher(store Store, logger *slog.Logger, m *metrics.Metrics, hub *ws.Hub, health *engine.HealthTracker, maxBackoff time.Duration) *Dispatcher {
	return &Dispatcher{
		store:      store,
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    m,
		hub:        hub,
		health:     health,
		maxBackoff: maxBackoff,
		sleep:      sleepContext,
	}
}

// Dispatch runs one trigger end to end: envelope, filter check, the retry
// loop, and outcome recording. The returned error is reserved for unexpected
// internal failures; exhausted retries come back as a Result with
// Success=false.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *domain.WebhookConfig, trig Trigger) (Result, error) {
	env := NewEnvelope(cfg.ID, trig.Payload, time.Now())

	res := Result{
		WebhookID:   cfg.ID,
		WebhookName: cfg.Name,
		ForwardedTo: cfg.TargetURL,
	}

	if cfg.FilterByEvent && len(cfg.Events) > 0 && !slices.Contains(cfg.Events, env.Event) {
		res.Success = true
		res.Filtered = true
		d.countTrigger("filtered")
		d.broadcast("trigger_filtered", cfg, env.Event, res)
		d.logger.Info("trigger filtered out",
			"webhook_id", cfg.ID,
			"event", env.Event,
		)
		return res, nil
	}

	body, err := json.Marshal(env)
	if err != nil {
		return res, fmt.Errorf("encoding envelope: %w", err)
	}
	headers := buildHeaders(cfg, body)

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = DefaultRetryAttempts
	}
	if attempts > MaxRetryAttempts {
		attempts = MaxRetryAttempts
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	start := time.Now()
	var lastStatus int
	var lastBody, lastErr string

	for attempt := 1; attempt <= attempts; attempt++ {
		status, respBody, err := d.attempt(ctx, cfg.TargetURL, headers, body, timeout)
		if err != nil {
			lastStatus, lastBody, lastErr = 0, "", err.Error()
			d.countAttempt("failure")
			d.logger.Warn("delivery attempt failed",
				"webhook_id", cfg.ID,
				"attempt", attempt,
				"error", err,
			)
		} else {
			lastStatus, lastBody, lastErr = status, respBody, ""
			if isSuccess(status) {
				d.countAttempt("success")
				break
			}
			d.countAttempt("failure")
			d.logger.Warn("delivery attempt rejected",
				"webhook_id", cfg.ID,
				"attempt", attempt,
				"status", status,
			)
		}

		if attempt < attempts {
			d.sleep(ctx, backoffDelay(attempt, d.maxBackoff))
		}
	}

	elapsed := time.Since(start)
	res.Success = isSuccess(lastStatus)
	res.ResponseStatus = lastStatus
	res.ResponseTimeMs = elapsed.Milliseconds()
	res.Error = lastErr

	// Best-effort audit: a failed write is logged and counted, never
	// escalated — the forward already happened.
	err = d.store.RecordOutcome(ctx, domain.DeliveryRecord{
		WebhookConfigID: cfg.ID,
		Method:          trig.Method,
		Payload:         trig.Payload,
		Headers:         trig.Headers,
		ResponseStatus:  lastStatus,
		ResponseBody:    lastBody,
		ResponseTimeMs:  elapsed.Milliseconds(),
		ErrorMessage:    lastErr,
		Success:         res.Success,
	})
	if err != nil {
		d.logger.Error("failed to record delivery outcome",
			"webhook_id", cfg.ID,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.LogWriteFailures.Inc()
		}
	}

	if d.health != nil {
		if res.Success {
			d.health.RecordSuccess(ctx, cfg.ID)
		} else {
			d.health.RecordFailure(ctx, cfg.ID)
		}
	}

	if d.metrics != nil {
		d.metrics.DeliveryDuration.Observe(elapsed.Seconds())
	}

	if res.Success {
		d.countTrigger("success")
		d.broadcast("delivery_success", cfg, env.Event, res)
		d.logger.Info("delivery successful",
			"webhook_id", cfg.ID,
			"status_code", lastStatus,
			"response_time_ms", res.ResponseTimeMs,
		)
	} else {
		d.countTrigger("failed")
		d.broadcast("delivery_failed", cfg, env.Event, res)
		d.logger.Warn("delivery failed",
			"webhook_id", cfg.ID,
			"status_code", lastStatus,
			"error", lastErr,
			"response_time_ms", res.ResponseTimeMs,
		)
	}

	return res, nil
}

// attempt performs a single outbound POST bounded by its own timeout. The
// response body is read up to the stored truncation limit.
func (d *Dispatcher) attempt(ctx context.Context, targetURL string, headers map[string]string, body []byte, timeout time.Duration) (int, string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyChars))
	return resp.StatusCode, string(respBody), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// backoffDelay is 2^attempt seconds, capped. attempt starts at 1, so the
// schedule runs 2s, 4s, 8s, ...
func backoffDelay(attempt int, max time.Duration) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if max > 0 && delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Dispatcher) countTrigger(result string) {
	if d.metrics != nil {
		d.metrics.TriggersTotal.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) countAttempt(outcome string) {
	if d.metrics != nil {
		d.metrics.AttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func (d *Dispatcher) broadcast(eventType string, cfg *domain.WebhookConfig, event string, res Result) {
	if d.hub == nil {
		return
	}
	d.hub.Broadcast(ws.TriggerEvent{
		Type:        eventType,
		WebhookID:   cfg.ID,
		WebhookName: cfg.Name,
		TargetURL:   cfg.TargetURL,
		Event:       event,
		StatusCode:  res.ResponseStatus,
		ResponseMs:  res.ResponseTimeMs,
		Error:       res.Error,
		Timestamp:   time.Now().UTC(),
	})
}
