package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

func TestNewLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		LogDir:     dir,
		Level:      "info",
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
		Compress:   true,
	}
	_, err := NewLogger(cfg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, defaultLogFileName)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file, got error: %v", err)
	}
}

func TestNewLoggerRejectsRotationConfig(t *testing.T) {
	cfg := config.LoggingConfig{LogDir: t.TempDir(), MaxSizeMB: 0, MaxBackups: 1, MaxAgeDays: 1}
	if _, err := NewLogger(cfg, false); err == nil {
		t.Fatalf("expected error for invalid rotation config")
	}
}

func TestOTelHandlerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, formatJSON, true, true))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "guard_check_completed")
	out := buf.String()
	if !strings.Contains(out, `"trace_id":"0102030405060708090a0b0c0d0e0f10"`) || !strings.Contains(out, `"span_id":"0102030405060708"`) {
		t.Fatalf("expected trace correlation, got %s", out)
	}

	buf.Reset()
	logger.Info("no_span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("did not expect trace id without span: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for input, expected := range cases {
		if got := parseLevel(input); got != expected {
			t.Fatalf("parseLevel(%q) = %v", input, got)
		}
	}
}
