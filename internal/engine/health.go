package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Endpoint health statuses, derived from the consecutive-failure streak.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailing  = "failing"
)

// HealthTracker keeps a per-configuration failure streak in Redis so owners
// can see a misbehaving target endpoint before digging through logs. It is
// observational only: tracking never blocks or reorders deliveries.
type HealthTracker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failingThreshold int
}

// EndpointHealth is the current delivery health of one target endpoint.
type EndpointHealth struct {
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
}

func NewHealthTracker(redisClient *redis.Client, logger *slog.Logger) *HealthTracker {
	return &HealthTracker{
		redisClient:      redisClient,
		logger:           logger,
		failingThreshold: 5,
	}
}

func healthKey(webhookID string) string {
	return fmt.Sprintf("eph:%s", webhookID)
}

// RecordSuccess resets the failure streak.
func (t *HealthTracker) RecordSuccess(ctx context.Context, webhookID string) {
	err := t.redisClient.HSet(ctx, healthKey(webhookID),
		"failures", 0,
		"last_success_at", time.Now().Unix(),
	).Err()
	if err != nil {
		t.logger.Error("failed to record endpoint success", "error", err, "webhook_id", webhookID)
	}
}

// RecordFailure extends the failure streak.
func (t *HealthTracker) RecordFailure(ctx context.Context, webhookID string) {
	key := healthKey(webhookID)

	failures, err := t.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		t.logger.Error("failed to record endpoint failure", "error", err, "webhook_id", webhookID)
		return
	}
	t.redisClient.HSet(ctx, key, "last_failure_at", time.Now().Unix())

	if failures == int64(t.failingThreshold) {
		t.logger.Warn("endpoint marked failing",
			"webhook_id", webhookID,
			"consecutive_failures", failures,
		)
	}
}

// State returns the endpoint's current health.
func (t *HealthTracker) State(ctx context.Context, webhookID string) EndpointHealth {
	data, err := t.redisClient.HGetAll(ctx, healthKey(webhookID)).Result()
	if err != nil || len(data) == 0 {
		return EndpointHealth{Status: StatusOK}
	}

	failures, _ := strconv.Atoi(data["failures"])

	health := EndpointHealth{
		Status:              StatusOK,
		ConsecutiveFailures: failures,
	}
	switch {
	case failures >= t.failingThreshold:
		health.Status = StatusFailing
	case failures > 0:
		health.Status = StatusDegraded
	}

	if ts := unixField(data, "last_failure_at"); ts != "" {
		health.LastFailureAt = ts
	}
	if ts := unixField(data, "last_success_at"); ts != "" {
		health.LastSuccessAt = ts
	}

	return health
}

func unixField(data map[string]string, field string) string {
	raw, ok := data[field]
	if !ok || raw == "" {
		return ""
	}
	secs, _ := strconv.ParseInt(raw, 10, 64)
	if secs <= 0 {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format(time.RFC3339)
}
