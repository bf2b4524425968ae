package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/voxhub/webhook-dispatcher/internal/domain"
)

func TestComputeSignature(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		secret string
	}{
		{
			name:   "basic envelope",
			body:   []byte(`{"event":"call.completed","data":{"id":"123"}}`),
			secret: "my-secret-key",
		},
		{
			name:   "empty body",
			body:   []byte(`{}`),
			secret: "secret",
		},
		{
			name:   "unicode body",
			body:   []byte(`{"name":"café","price":"€10"}`),
			secret: "unicode-key-日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := computeSignature(tt.body, tt.secret)

			if !strings.HasPrefix(sig, "sha256=") {
				t.Fatalf("signature missing scheme prefix: %s", sig)
			}

			hexPart := strings.TrimPrefix(sig, "sha256=")
			decoded, err := hex.DecodeString(hexPart)
			if err != nil {
				t.Fatalf("signature is not valid hex: %v", err)
			}
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.body)
			expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

			if sig != expected {
				t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
			}
		})
	}
}

func TestComputeSignature_Deterministic(t *testing.T) {
	body := []byte(`{"event":"test"}`)
	secret := "test-secret"

	if computeSignature(body, secret) != computeSignature(body, secret) {
		t.Error("same body and secret should produce the same signature")
	}
}

func TestComputeSignature_OneByteChangesEverything(t *testing.T) {
	secret := "my-secret"

	sig1 := computeSignature([]byte(`{"a":1}`), secret)
	sig2 := computeSignature([]byte(`{"a":2}`), secret)

	if sig1 == sig2 {
		t.Error("different bodies should produce different signatures")
	}
}

func TestEventName(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"declared event", map[string]any{"event": "call.completed"}, "call.completed"},
		{"no event field", map[string]any{"foo": "bar"}, DefaultEvent},
		{"empty event", map[string]any{"event": ""}, DefaultEvent},
		{"non-string event", map[string]any{"event": 42}, DefaultEvent},
		{"array payload", []any{"a", "b"}, DefaultEvent},
		{"scalar payload", "hello", DefaultEvent},
		{"nil payload", nil, DefaultEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventName(tt.payload); got != tt.want {
				t.Errorf("eventName(%v) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	payload := map[string]any{"event": "call.completed", "foo": "bar"}

	env := NewEnvelope("abc123", payload, now)

	if env.Event != "call.completed" {
		t.Errorf("Event = %q, want %q", env.Event, "call.completed")
	}
	if env.WebhookID != "abc123" {
		t.Errorf("WebhookID = %q, want %q", env.WebhookID, "abc123")
	}
	if env.Timestamp != "2026-03-14T09:26:53Z" {
		t.Errorf("Timestamp = %q, want RFC3339 UTC", env.Timestamp)
	}
}

func TestBuildHeaders_Defaults(t *testing.T) {
	cfg := &domain.WebhookConfig{}
	headers := buildHeaders(cfg, []byte(`{}`))

	if headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", headers["Content-Type"])
	}
	if headers["User-Agent"] != "Voxhub-Webhook/1.0" {
		t.Errorf("User-Agent = %q", headers["User-Agent"])
	}
	if _, ok := headers[signatureHeader]; ok {
		t.Error("signature should be absent without a secret")
	}
}

func TestBuildHeaders_ExtraHeadersWin(t *testing.T) {
	cfg := &domain.WebhookConfig{
		ExtraHeaders: map[string]string{
			"Content-Type":  "application/vnd.custom+json",
			"X-Environment": "staging",
		},
	}
	headers := buildHeaders(cfg, []byte(`{}`))

	if headers["Content-Type"] != "application/vnd.custom+json" {
		t.Errorf("configured headers should win on collision, got %q", headers["Content-Type"])
	}
	if headers["X-Environment"] != "staging" {
		t.Errorf("X-Environment = %q", headers["X-Environment"])
	}
}

func TestBuildHeaders_SignatureWithSecret(t *testing.T) {
	body := []byte(`{"event":"test"}`)
	cfg := &domain.WebhookConfig{Secret: "s3cr3t"}

	headers := buildHeaders(cfg, body)

	want := computeSignature(body, "s3cr3t")
	if headers[signatureHeader] != want {
		t.Errorf("%s = %q, want %q", signatureHeader, headers[signatureHeader], want)
	}
}
