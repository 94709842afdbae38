package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"dolltrack/internal/auth"
	"dolltrack/internal/obs"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	obs.InitLogger("info", &buf)
	defer obs.InitLogger("info", os.Stderr)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{ID: "alice"})

	if err := LogEvent(ctx, "container.create", map[string]any{"name": "Bag 1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "container.create" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor"] != "alice" {
		t.Fatalf("unexpected actor: %v", entry["actor"])
	}
	if entry["name"] != "Bag 1" {
		t.Fatalf("fields missing or incorrect: %v", entry)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event name")
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, "  "); got != ctx {
		t.Fatal("blank request id must not allocate a new context")
	}
}
