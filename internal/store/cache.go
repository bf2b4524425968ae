package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voxhub/webhook-dispatcher/internal/domain"
)

type webhookSource interface {
	GetActiveWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error)
	RecordOutcome(ctx context.Context, rec domain.DeliveryRecord) error
}

// CachedWebhooks is a read-through Redis cache in front of the Postgres
// store. With TTL <= 0 every lookup goes straight to Postgres, matching the
// re-read-per-trigger behavior the dispatcher had before caching existed.
// Negative lookups are not cached so a newly activated configuration is
// visible immediately.
type CachedWebhooks struct {
	inner  webhookSource
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

func NewCachedWebhooks(inner webhookSource, client *redis.Client, logger *slog.Logger, ttl time.Duration) *CachedWebhooks {
	return &CachedWebhooks{
		inner:  inner,
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func cacheKey(id string) string {
	return fmt.Sprintf("whcfg:%s", id)
}

func (c *CachedWebhooks) GetActiveWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	if c.ttl <= 0 {
		return c.inner.GetActiveWebhook(ctx, id)
	}

	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var cfg domain.WebhookConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			return &cfg, nil
		}
		// Corrupt entry, fall through and refresh
		c.client.Del(ctx, cacheKey(id))
	}

	cfg, err := c.inner.GetActiveWebhook(ctx, id)
	if err != nil || cfg == nil {
		return cfg, err
	}

	encoded, err := json.Marshal(cfg)
	if err == nil {
		if err := c.client.Set(ctx, cacheKey(id), encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("failed to cache webhook config", "webhook_id", id, "error", err)
		}
	}

	return cfg, nil
}

// RecordOutcome passes straight through. The cached row's counters go stale
// until the TTL expires, which is why counters are read from Postgres only.
func (c *CachedWebhooks) RecordOutcome(ctx context.Context, rec domain.DeliveryRecord) error {
	return c.inner.RecordOutcome(ctx, rec)
}

// Invalidate evicts a configuration, called after every edit or delete.
func (c *CachedWebhooks) Invalidate(ctx context.Context, id string) {
	if c.ttl <= 0 {
		return
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("failed to invalidate webhook config cache", "webhook_id", id, "error", err)
	}
}
