package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"sptm.org/internal/obs"
)

func TestJSONSinkAppend(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	event := NewEvent("login", time.Now())
	event.Kind = "organization"
	event.Email = "ops@metro.example"
	event.IP = "10.1.2.3"
	event.Success = false
	event.ErrorKind = "INVALID_CREDENTIALS"
	event.Metadata = map[string]any{"password": "hunter2", "attempt": 3}

	if err := (JSONSink{}).Append(context.Background(), event); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "security_event" || entry["action"] != "login" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	metadata, ok := entry["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing: %v", entry)
	}
	if metadata["password"] != RedactedMarker {
		t.Fatalf("password not redacted: %v", metadata["password"])
	}
	if metadata["attempt"] != float64(3) {
		t.Fatalf("benign metadata dropped: %v", metadata)
	}
	if entry["id"] == "" {
		t.Fatal("event id missing")
	}
}

func TestSanitize(t *testing.T) {
	out := Sanitize(map[string]any{
		"refresh_token": "abc",
		"client_secret": "xyz",
		"route":         "r-1",
	})
	if out["refresh_token"] != RedactedMarker || out["client_secret"] != RedactedMarker {
		t.Fatalf("sensitive keys not redacted: %v", out)
	}
	if out["route"] != "r-1" {
		t.Fatalf("benign key mangled: %v", out)
	}
	if got := Sanitize(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil metadata should become empty map, got %v", got)
	}
}
