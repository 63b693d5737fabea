package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/nice-bills/substrate/internal/config"
)

func TestNewWritesServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "debug", Service: "substrate-test"}, &buf)
	defer closer.Close()

	l.Debug("hello", "agent_id", "a1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "substrate-test" {
		t.Errorf("expected service attr, got %v", rec["service"])
	}
	if rec["agent_id"] != "a1" {
		t.Errorf("expected agent_id attr, got %v", rec["agent_id"])
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "warn", Service: "s"}, &buf)
	defer closer.Close()

	l.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestNewAsync(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "s", Async: true}, &buf)
	l.Info("queued")
	closer.Close()
	if !bytes.Contains(buf.Bytes(), []byte(`"queued"`)) {
		t.Fatalf("expected record flushed on close, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{" ERROR ", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}

	var buf bytes.Buffer
	base, closer := NewWithWriter(config.Logging{Service: "s"}, &buf)
	defer closer.Close()
	From(ctx, base).Info("tagged")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-123"`)) {
		t.Errorf("expected request_id attr, got %q", buf.String())
	}
}
