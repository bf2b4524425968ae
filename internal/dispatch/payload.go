package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Inbound trigger bodies are capped to keep a hostile caller from ballooning
// the log table.
const maxTriggerBodyBytes = 1 << 20

// Trigger is a parsed inbound request asking for a webhook delivery.
type Trigger struct {
	Method  string
	Payload any
	Headers map[string]string
}

// ParseTrigger extracts the delivery payload from an inbound request. Parsing
// is defensive: a body that does not match its declared content type becomes
// an error-shaped payload instead of failing the trigger.
func ParseTrigger(r *http.Request) Trigger {
	return Trigger{
		Method:  r.Method,
		Payload: parsePayload(r),
		Headers: flattenHeaders(r.Header),
	}
}

func parsePayload(r *http.Request) any {
	if r.Method == http.MethodGet {
		return flattenValues(r.URL.Query())
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBodyBytes))
	if err != nil {
		return errorPayload(fmt.Sprintf("reading request body: %v", err))
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return errorPayload(fmt.Sprintf("invalid JSON payload: %v", err))
		}
		return v

	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return errorPayload(fmt.Sprintf("invalid form payload: %v", err))
		}
		return flattenValues(values)

	default:
		return map[string]any{"body": string(body)}
	}
}

func errorPayload(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// flattenValues keeps the first value per key, the shape the UI sends.
func flattenValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, vals := range h {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}
