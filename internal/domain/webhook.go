package domain

import (
	"time"
)

// WebhookConfig describes where and how triggered events are forwarded:
// target URL, optional signing secret, extra headers, and retry policy.
// Counters are rolling totals maintained by the dispatcher.
type WebhookConfig struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	TargetURL          string            `json:"target_url"`
	Secret             string            `json:"secret,omitempty"`
	TriggerToken       string            `json:"trigger_token,omitempty"`
	IsActive           bool              `json:"is_active"`
	Events             []string          `json:"events"`
	FilterByEvent      bool              `json:"filter_by_event"`
	ExtraHeaders       map[string]string `json:"extra_headers"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	RetryAttempts      int               `json:"retry_attempts"`
	RateLimitPerSecond int               `json:"rate_limit_per_second"`
	TotalCalls         int64             `json:"total_calls"`
	SuccessfulCalls    int64             `json:"successful_calls"`
	FailedCalls        int64             `json:"failed_calls"`
	LastTriggeredAt    *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type CreateWebhookRequest struct {
	UserID             string            `json:"user_id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	TargetURL          string            `json:"target_url"`
	TriggerToken       string            `json:"trigger_token,omitempty"`
	Events             []string          `json:"events,omitempty"`
	FilterByEvent      bool              `json:"filter_by_event,omitempty"`
	ExtraHeaders       map[string]string `json:"extra_headers,omitempty"`
	TimeoutSeconds     int               `json:"timeout_seconds,omitempty"`
	RetryAttempts      int               `json:"retry_attempts,omitempty"`
	RateLimitPerSecond int               `json:"rate_limit_per_second,omitempty"`
}

type UpdateWebhookRequest struct {
	Name               *string            `json:"name,omitempty"`
	Description        *string            `json:"description,omitempty"`
	TargetURL          *string            `json:"target_url,omitempty"`
	TriggerToken       *string            `json:"trigger_token,omitempty"`
	IsActive           *bool              `json:"is_active,omitempty"`
	Events             *[]string          `json:"events,omitempty"`
	FilterByEvent      *bool              `json:"filter_by_event,omitempty"`
	ExtraHeaders       *map[string]string `json:"extra_headers,omitempty"`
	TimeoutSeconds     *int               `json:"timeout_seconds,omitempty"`
	RetryAttempts      *int               `json:"retry_attempts,omitempty"`
	RateLimitPerSecond *int               `json:"rate_limit_per_second,omitempty"`
}

// CreateWebhookResponse is the only place the generated secret is returned.
type CreateWebhookResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
	Secret    string `json:"secret"`
}
