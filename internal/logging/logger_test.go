package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return slog.New(newConsoleHandler(&buf, levelVar)), &buf
}

func TestConsoleHandlerComponentPrefix(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	WithComponent(logger, "tmdb").Info("fetched movies", slog.Int("count", 3))

	line := buf.String()
	if !strings.Contains(line, "INFO tmdb: fetched movies") {
		t.Fatalf("missing component prefix: %q", line)
	}
	if !strings.Contains(line, "count=3") {
		t.Fatalf("missing attribute: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component attribute should be folded into the prefix: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	logger.Warn("source failed", slog.String("error", "connection refused"))
	if !strings.Contains(buf.String(), `error="connection refused"`) {
		t.Fatalf("value not quoted: %q", buf.String())
	}
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")
	logger.Info("ignored")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "ignored") || !strings.Contains(out, "kept") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestHandlerEnabled(t *testing.T) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	h := newConsoleHandler(&bytes.Buffer{}, levelVar)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled at info level")
	}
}
