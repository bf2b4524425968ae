package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/voxhub/webhook-dispatcher/internal/dispatch"
	"github.com/voxhub/webhook-dispatcher/internal/domain"
	"github.com/voxhub/webhook-dispatcher/internal/engine"
	ws "github.com/voxhub/webhook-dispatcher/internal/websocket"
)

// triggerStore fakes the dispatcher's datastore: a fixed set of active
// configurations plus call accounting.
type triggerStore struct {
	mu      sync.Mutex
	configs map[string]*domain.WebhookConfig
	lookups int
	records []domain.DeliveryRecord
}

func (f *triggerStore) GetActiveWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	cfg, ok := f.configs[id]
	if !ok || !cfg.IsActive {
		return nil, nil
	}
	clone := *cfg
	return &clone, nil
}

func (f *triggerStore) RecordOutcome(ctx context.Context, rec domain.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *triggerStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *triggerStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestRouter(t *testing.T, store *triggerStore, limiter *engine.RateLimiter) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	hub := ws.NewHub(logger)
	go hub.Run()

	dispatcher := dispatch.NewDispatcher(store, logger, nil, nil, nil, 30*time.Second)
	trigger := NewTriggerHandler(store, dispatcher, limiter, logger)

	return NewRouter(
		trigger,
		NewWebhookHandler(nil, nil, nil),
		NewLogHandler(nil),
		NewStatsHandler(nil, hub),
		hub,
		prometheus.NewRegistry(),
	)
}

func activeConfig(targetURL string) *domain.WebhookConfig {
	return &domain.WebhookConfig{
		ID:             "abc123",
		Name:           "call events",
		TargetURL:      targetURL,
		Secret:         "s3cr3t",
		IsActive:       true,
		TimeoutSeconds: 5,
		RetryAttempts:  1,
	}
}

func TestTrigger_MissingID(t *testing.T) {
	store := &triggerStore{configs: map[string]*domain.WebhookConfig{}}
	router := newTestRouter(t, store, nil)

	for _, path := range []string{"/webhook-handler", "/webhook-handler/"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", path, strings.NewReader(`{}`)))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}

	if store.lookupCount() != 0 {
		t.Error("missing id must be rejected without any datastore access")
	}
}

func TestTrigger_UnknownOrInactiveConfig(t *testing.T) {
	inactive := activeConfig("http://unused.example")
	inactive.ID = "inactive1"
	inactive.IsActive = false

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"inactive1": inactive}}
	router := newTestRouter(t, store, nil)

	for _, id := range []string{"nosuchid", "inactive1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook-handler/"+id, strings.NewReader(`{}`)))

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", id, rec.Code)
		}
	}

	if store.recordCount() != 0 {
		t.Error("404 triggers must not write log rows or counters")
	}
}

func TestTrigger_SuccessfulForward(t *testing.T) {
	var requestCount atomic.Int32
	var gotBody []byte

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"abc123": activeConfig(target.URL)}}
	router := newTestRouter(t, store, nil)

	req := httptest.NewRequest("POST", "/webhook-handler/abc123",
		strings.NewReader(`{"event":"call.completed","foo":"bar"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if requestCount.Load() != 1 {
		t.Errorf("expected 1 outbound POST, got %d", requestCount.Load())
	}

	var resp struct {
		Success        bool    `json:"success"`
		WebhookID      string  `json:"webhook_id"`
		WebhookName    string  `json:"webhook_name"`
		ResponseStatus int     `json:"response_status"`
		Error          *string `json:"error"`
		ForwardedTo    string  `json:"forwarded_to"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if !resp.Success || resp.WebhookID != "abc123" || resp.ResponseStatus != 200 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Error != nil {
		t.Errorf("error should be null, got %v", *resp.Error)
	}
	if resp.ForwardedTo != target.URL {
		t.Errorf("forwarded_to = %q", resp.ForwardedTo)
	}

	var env map[string]any
	json.Unmarshal(gotBody, &env)
	if env["event"] != "call.completed" || env["webhook_id"] != "abc123" {
		t.Errorf("forwarded envelope = %v", env)
	}

	if store.recordCount() != 1 {
		t.Errorf("expected 1 recorded outcome, got %d", store.recordCount())
	}
}

func TestTrigger_FailedForwardReturns500(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer target.Close()

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"abc123": activeConfig(target.URL)}}
	router := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when forwarding fails", rec.Code)
	}

	var resp struct {
		Success        bool `json:"success"`
		ResponseStatus int  `json:"response_status"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.ResponseStatus != http.StatusBadGateway {
		t.Errorf("response = %+v", resp)
	}

	// Failed forwards are still recorded
	if store.recordCount() != 1 {
		t.Errorf("expected 1 recorded outcome, got %d", store.recordCount())
	}
}

func TestTrigger_GETForwardsQueryParams(t *testing.T) {
	var gotBody []byte

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"abc123": activeConfig(target.URL)}}
	router := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook-handler/abc123?event=call.started&agent=alice", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var env map[string]any
	json.Unmarshal(gotBody, &env)
	if env["event"] != "call.started" {
		t.Errorf("envelope event = %v", env["event"])
	}
	data, _ := env["data"].(map[string]any)
	if data["agent"] != "alice" {
		t.Errorf("envelope data = %v", env["data"])
	}
}

func TestTrigger_TokenAuthentication(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	cfg := activeConfig(target.URL)
	cfg.TriggerToken = "tok_12345"

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"abc123": cfg}}
	router := newTestRouter(t, store, nil)

	// Missing token
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}

	// Wrong token
	req := httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`))
	req.Header.Set(TriggerTokenHeader, "tok_wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	if store.recordCount() != 0 {
		t.Error("rejected triggers must not produce side effects")
	}

	// Correct token
	req = httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`))
	req.Header.Set(TriggerTokenHeader, "tok_12345")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("correct token: status = %d, want 200", rec.Code)
	}
}

func TestTrigger_RateLimited(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	limiter := engine.NewRateLimiter(client, logger)

	cfg := activeConfig(target.URL)
	cfg.RateLimitPerSecond = 1

	store := &triggerStore{configs: map[string]*domain.WebhookConfig{"abc123": cfg}}
	router := newTestRouter(t, store, limiter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("first trigger: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook-handler/abc123", strings.NewReader(`{}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second trigger within window: status = %d, want 429", rec.Code)
	}

	if store.recordCount() != 1 {
		t.Errorf("rate-limited trigger must not record an outcome, got %d", store.recordCount())
	}
}

func TestTrigger_CORSPreflight(t *testing.T) {
	store := &triggerStore{configs: map[string]*domain.WebhookConfig{}}
	router := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/webhook-handler/abc123", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing permissive CORS origin")
	}
	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"authorization", "x-client-info", "apikey", "content-type"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("Access-Control-Allow-Headers missing %q: %s", h, allowed)
		}
	}

	if store.lookupCount() != 0 {
		t.Error("preflight must not touch the datastore")
	}
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	store := &triggerStore{configs: map[string]*domain.WebhookConfig{}}
	router := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/webhook-handler/abc123", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
