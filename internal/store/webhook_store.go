package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/voxhub/webhook-dispatcher/internal/domain"
)

const webhookColumns = `id, user_id, name, description, target_url, secret, trigger_token,
	is_active, events, filter_by_event, extra_headers, timeout_seconds, retry_attempts,
	rate_limit_per_second, total_calls, successful_calls, failed_calls,
	last_triggered_at, created_at, updated_at`

func scanWebhook(row pgx.Row) (*domain.WebhookConfig, error) {
	var cfg domain.WebhookConfig
	err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Name, &cfg.Description, &cfg.TargetURL,
		&cfg.Secret, &cfg.TriggerToken, &cfg.IsActive, &cfg.Events,
		&cfg.FilterByEvent, &cfg.ExtraHeaders, &cfg.TimeoutSeconds,
		&cfg.RetryAttempts, &cfg.RateLimitPerSecond, &cfg.TotalCalls,
		&cfg.SuccessfulCalls, &cfg.FailedCalls, &cfg.LastTriggeredAt,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning webhook config: %w", err)
	}
	return &cfg, nil
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, req domain.CreateWebhookRequest) (*domain.WebhookConfig, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 30
	}
	if req.RetryAttempts <= 0 {
		req.RetryAttempts = 3
	}
	if req.Events == nil {
		req.Events = []string{}
	}
	if req.ExtraHeaders == nil {
		req.ExtraHeaders = map[string]string{}
	}

	headers, err := json.Marshal(req.ExtraHeaders)
	if err != nil {
		return nil, fmt.Errorf("encoding extra headers: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_configs
			(id, user_id, name, description, target_url, secret, trigger_token,
			 events, filter_by_event, extra_headers, timeout_seconds, retry_attempts,
			 rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+webhookColumns,
		uuid.NewString(), req.UserID, req.Name, req.Description, req.TargetURL,
		secret, req.TriggerToken, req.Events, req.FilterByEvent, headers,
		req.TimeoutSeconds, req.RetryAttempts, req.RateLimitPerSecond,
	)

	cfg, err := scanWebhook(row)
	if err != nil {
		return nil, fmt.Errorf("inserting webhook config: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+webhookColumns+" FROM webhook_configs WHERE id = $1", id)
	return scanWebhook(row)
}

// GetActiveWebhook resolves a trigger id to its configuration. Inactive and
// unknown configurations both come back nil, indistinguishable to callers.
func (s *PostgresStore) GetActiveWebhook(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+webhookColumns+" FROM webhook_configs WHERE id = $1 AND is_active = true", id)
	return scanWebhook(row)
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, userID string) ([]domain.WebhookConfig, error) {
	query := "SELECT " + webhookColumns + " FROM webhook_configs"
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying webhook configs: %w", err)
	}
	defer rows.Close()

	configs := []domain.WebhookConfig{}
	for rows.Next() {
		cfg, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		// Secrets never leave through list endpoints
		cfg.Secret = ""
		cfg.TriggerToken = ""
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) UpdateWebhook(ctx context.Context, id string, req domain.UpdateWebhookRequest) (*domain.WebhookConfig, error) {
	setClauses := []string{}
	args := []any{}
	argIdx := 1

	addClause := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.TargetURL != nil {
		addClause("target_url", *req.TargetURL)
	}
	if req.TriggerToken != nil {
		addClause("trigger_token", *req.TriggerToken)
	}
	if req.IsActive != nil {
		addClause("is_active", *req.IsActive)
	}
	if req.Events != nil {
		addClause("events", *req.Events)
	}
	if req.FilterByEvent != nil {
		addClause("filter_by_event", *req.FilterByEvent)
	}
	if req.ExtraHeaders != nil {
		headers, err := json.Marshal(*req.ExtraHeaders)
		if err != nil {
			return nil, fmt.Errorf("encoding extra headers: %w", err)
		}
		addClause("extra_headers", headers)
	}
	if req.TimeoutSeconds != nil {
		addClause("timeout_seconds", *req.TimeoutSeconds)
	}
	if req.RetryAttempts != nil {
		addClause("retry_attempts", *req.RetryAttempts)
	}
	if req.RateLimitPerSecond != nil {
		addClause("rate_limit_per_second", *req.RateLimitPerSecond)
	}

	if len(setClauses) == 0 {
		return s.GetWebhook(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE webhook_configs SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argIdx, webhookColumns)
	args = append(args, id)

	return scanWebhook(s.pool.QueryRow(ctx, query, args...))
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM webhook_configs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting webhook config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordOutcome writes the delivery log row and bumps the rolling counters in
// a single transaction. The increments run server-side, so concurrent
// triggers for the same configuration cannot lose updates.
func (s *PostgresStore) RecordOutcome(ctx context.Context, rec domain.DeliveryRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding request payload: %w", err)
	}
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("encoding request headers: %w", err)
	}

	var respBody *string
	if rec.ResponseBody != "" {
		respBody = &rec.ResponseBody
	}
	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}

	successInc, failedInc := 0, 1
	if rec.Success {
		successInc, failedInc = 1, 0
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO webhook_logs
			(id, webhook_config_id, request_method, request_payload, request_headers,
			 response_status, response_body, response_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), rec.WebhookConfigID, rec.Method, payload, headers,
		rec.ResponseStatus, respBody, rec.ResponseTimeMs, errMsg)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE webhook_configs SET
			total_calls = total_calls + 1,
			successful_calls = successful_calls + $2,
			failed_calls = failed_calls + $3,
			last_triggered_at = NOW()
		WHERE id = $1
	`, rec.WebhookConfigID, successInc, failedInc)
	if err != nil {
		return fmt.Errorf("updating delivery counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing outcome: %w", err)
	}
	return nil
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}
