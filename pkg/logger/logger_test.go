package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Fatalf("empty input should default to info, got %s", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("garbage input should default to info, got %s", got)
	}
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"delivery_id": "d-1",
		"actor_role":  "courier",
	})
	logg.Info(ctx, "accepted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["delivery_id"] != "d-1" {
		t.Fatalf("delivery_id missing from log entry: %v", entry)
	}
	if entry["actor_role"] != "courier" {
		t.Fatalf("actor_role missing from log entry: %v", entry)
	}
	if entry["service"] != "test" {
		t.Fatalf("service name missing from log entry: %v", entry)
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	logg.Error(context.Background(), "boom", errors.New("cause"))

	if !strings.Contains(buf.String(), "stack") {
		t.Fatal("error entries should carry a stack trace")
	}
	if !strings.Contains(buf.String(), "cause") {
		t.Fatal("error entries should carry the error message")
	}
}
