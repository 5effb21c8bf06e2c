package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewWritesComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	l := New(cfg).WithComponent(ComponentLedger)

	l.Info("hello", FieldUserID, "u1")
	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=ledger") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "user_id=u1") {
		t.Fatalf("missing field in %q", out)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.Level = slog.LevelWarn
	l := New(cfg)

	l.Info("quiet")
	l.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("level not applied: %q", buf.String())
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mood.log")
	cfg := DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	cfg.File = path
	cfg.JSON = true
	l := New(cfg)

	l.Info("to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestMiddlewareAttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	base := New(cfg)

	h := Middleware(base, func(*http.Request) string { return "req-42" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LogEntryChange(r.Context(), OpUpsert, "u1", "2025-03-14", "stable")
		LogError(r.Context(), "boom", errors.New("disk"), OpDelete, nil)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	for _, want := range []string{"request_id=req-42", "component=http", "mood=stable", "error=disk", "operation=delete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("Component = %q", l.Component())
	}
}
