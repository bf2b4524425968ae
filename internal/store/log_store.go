package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/voxhub/webhook-dispatcher/internal/domain"
)

const logColumns = `id, webhook_config_id, request_method, request_payload, request_headers,
	response_status, response_body, response_time_ms, error_message, created_at`

func scanLog(row pgx.Row) (*domain.DeliveryLog, error) {
	var l domain.DeliveryLog
	err := row.Scan(
		&l.ID, &l.WebhookConfigID, &l.RequestMethod, &l.RequestPayload,
		&l.RequestHeaders, &l.ResponseStatus, &l.ResponseBody,
		&l.ResponseTimeMs, &l.ErrorMessage, &l.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning delivery log: %w", err)
	}
	return &l, nil
}

// ListLogs returns delivery logs, newest first. status filters on the final
// outcome: "success" keeps 2xx rows, "failed" everything else.
func (s *PostgresStore) ListLogs(ctx context.Context, webhookID, status string, limit int) ([]domain.DeliveryLog, error) {
	query := "SELECT " + logColumns + " FROM webhook_logs"
	args := []any{}
	argIdx := 1
	conditions := []string{}

	if webhookID != "" {
		conditions = append(conditions, fmt.Sprintf("webhook_config_id = $%d", argIdx))
		args = append(args, webhookID)
		argIdx++
	}
	switch status {
	case "success":
		conditions = append(conditions, "response_status BETWEEN 200 AND 299")
	case "failed":
		conditions = append(conditions, "(response_status < 200 OR response_status >= 300)")
	}

	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.DeliveryLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) GetLog(ctx context.Context, id string) (*domain.DeliveryLog, error) {
	return scanLog(s.pool.QueryRow(ctx,
		"SELECT "+logColumns+" FROM webhook_logs WHERE id = $1", id))
}

// DeliveryStats holds aggregated delivery statistics.
type DeliveryStats struct {
	TotalTriggers  int     `json:"total_triggers"`
	SuccessCount   int     `json:"success_count"`
	FailedCount    int     `json:"failed_count"`
	SuccessRate    float64 `json:"success_rate"`
	AvgResponseMs  float64 `json:"avg_response_ms"`
	ActiveWebhooks int     `json:"active_webhooks"`
}

// GetDeliveryStats aggregates the delivery log table.
func (s *PostgresStore) GetDeliveryStats(ctx context.Context) (*DeliveryStats, error) {
	var st DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE response_status BETWEEN 200 AND 299) AS success,
			COUNT(*) FILTER (WHERE response_status < 200 OR response_status >= 300) AS failed,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM webhook_logs
	`).Scan(&st.TotalTriggers, &st.SuccessCount, &st.FailedCount, &st.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	if st.TotalTriggers > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(st.TotalTriggers) * 100
	}

	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM webhook_configs WHERE is_active = true",
	).Scan(&st.ActiveWebhooks)
	if err != nil {
		return nil, fmt.Errorf("querying active webhooks: %w", err)
	}

	return &st, nil
}
