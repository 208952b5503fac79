// Package audit records append-only security events. Storage and retention
// are external concerns; the default sink writes JSON lines through the
// shared logger.
package audit

import (
	"context"
	"strings"
	"time"

	"sptm.org/internal/ids"
	"sptm.org/internal/obs"
)

// RedactedMarker replaces sensitive values before an event is written.
const RedactedMarker = "[REDACTED]"

// SecurityEvent is one append-only audit record. Events are never mutated or
// deleted once written.
type SecurityEvent struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"ts"`
	Kind        string         `json:"kind"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Action      string         `json:"action"`
	Success     bool           `json:"success"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Sink receives security events. Implementations must tolerate concurrent
// appends; failures are the caller's to ignore (logging is best-effort).
type Sink interface {
	Append(ctx context.Context, event SecurityEvent) error
}

// JSONSink writes events as JSON lines through the shared structured logger.
type JSONSink struct{}

func (JSONSink) Append(_ context.Context, event SecurityEvent) error {
	obs.LogJSON(map[string]any{
		"ts":           event.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":         "security_event",
		"id":           event.ID,
		"kind":         event.Kind,
		"principal_id": event.PrincipalID,
		"email":        event.Email,
		"ip":           event.IP,
		"user_agent":   event.UserAgent,
		"action":       event.Action,
		"success":      event.Success,
		"error_kind":   event.ErrorKind,
		"metadata":     Sanitize(event.Metadata),
	})
	return nil
}

// NewEvent stamps identity and time onto an event under construction.
func NewEvent(action string, now time.Time) SecurityEvent {
	return SecurityEvent{
		ID:        ids.New(),
		Timestamp: now,
		Action:    action,
	}
}

// Sanitize returns a copy of the metadata with credential-looking values
// replaced by the redaction marker.
func Sanitize(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSensitiveKey(k) {
			out[k] = RedactedMarker
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") ||
		strings.Contains(key, "secret") ||
		strings.Contains(key, "token")
}
