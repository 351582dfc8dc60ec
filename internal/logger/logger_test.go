package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "pricegap", nil)

	ctx := context.Background()
	log.Debug(ctx, "debug message")
	log.Info(ctx, "info message")
	log.Warn(ctx, "warn message", "chain", "arbitrum")
	log.Error(ctx, "error message")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["msg"] != "warn message" {
		t.Errorf("expected warn message first, got %v", lines[0]["msg"])
	}
	if lines[0]["chain"] != "arbitrum" {
		t.Errorf("expected chain attribute, got %v", lines[0]["chain"])
	}
	if lines[0]["service"] != "pricegap" {
		t.Errorf("expected service attribute, got %v", lines[0]["service"])
	}
}

func TestLogger_ContextFunc(t *testing.T) {
	type key struct{}

	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "svc", func(ctx context.Context) []slog.Attr {
		if v, ok := ctx.Value(key{}).(string); ok {
			return []slog.Attr{slog.String("task_id", v)}
		}
		return nil
	})

	ctx := context.WithValue(context.Background(), key{}, "eth-arb")
	log.Info(ctx, "tick")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d", len(lines))
	}
	if lines[0]["task_id"] != "eth-arb" {
		t.Errorf("expected task_id from context, got %v", lines[0]["task_id"])
	}
}

func TestLogger_SourceLocation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "svc", nil)

	log.Info(context.Background(), "where")

	lines := decodeLines(t, &buf)
	src, ok := lines[0]["source"].(map[string]any)
	if !ok {
		t.Fatalf("expected source object, got %v", lines[0]["source"])
	}
	if file, _ := src["file"].(string); !strings.HasSuffix(file, "logger_test.go") {
		t.Errorf("expected caller to be the test file, got %q", file)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
