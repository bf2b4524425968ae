package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/voxhub/webhook-dispatcher/internal/domain"
)

const (
	// DefaultEvent names triggers whose payload declares no event of its own.
	DefaultEvent = "webhook_triggered"

	userAgent       = "Voxhub-Webhook/1.0"
	signatureHeader = "X-Voxhub-Signature"
)

// Envelope is the JSON structure delivered to the target URL, wrapping the
// original trigger payload.
type Envelope struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	WebhookID string `json:"webhook_id"`
}

// NewEnvelope wraps a trigger payload for delivery.
func NewEnvelope(webhookID string, payload any, now time.Time) Envelope {
	return Envelope{
		Event:     eventName(payload),
		Data:      payload,
		Timestamp: now.UTC().Format(time.RFC3339),
		WebhookID: webhookID,
	}
}

// eventName pulls the declared event out of an object payload, falling back
// to DefaultEvent. The dispatcher stays payload-shape-agnostic: arrays,
// scalars, and objects without an event field all get the default.
func eventName(payload any) string {
	if m, ok := payload.(map[string]any); ok {
		if event, ok := m["event"].(string); ok && event != "" {
			return event
		}
	}
	return DefaultEvent
}

// buildHeaders constructs the outbound request headers. Configured extra
// headers win on collision, and the signature is only present with a secret.
func buildHeaders(cfg *domain.WebhookConfig, body []byte) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   userAgent,
	}
	for key, value := range cfg.ExtraHeaders {
		headers[key] = value
	}
	if cfg.Secret != "" {
		headers[signatureHeader] = computeSignature(body, cfg.Secret)
	}
	return headers
}

// computeSignature generates the hex HMAC-SHA256 of the envelope body,
// prefixed with the scheme so receivers can detect future algorithm changes.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
