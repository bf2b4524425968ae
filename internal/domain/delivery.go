package domain

import (
	"encoding/json"
	"time"
)

// DeliveryLog is one append-only row per inbound trigger. It captures the
// final outcome of the attempt sequence, not each individual retry.
type DeliveryLog struct {
	ID              string          `json:"id"`
	WebhookConfigID string          `json:"webhook_config_id"`
	RequestMethod   string          `json:"request_method"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	RequestHeaders  json.RawMessage `json:"request_headers,omitempty"`
	ResponseStatus  int             `json:"response_status"`
	ResponseBody    *string         `json:"response_body,omitempty"`
	ResponseTimeMs  int64           `json:"response_time_ms"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DeliveryRecord is what the dispatcher persists once a trigger's attempt
// sequence finishes. ResponseStatus is 0 when no response was ever obtained.
type DeliveryRecord struct {
	WebhookConfigID string
	Method          string
	Payload         any
	Headers         map[string]string
	ResponseStatus  int
	ResponseBody    string
	ResponseTimeMs  int64
	ErrorMessage    string
	Success         bool
}
