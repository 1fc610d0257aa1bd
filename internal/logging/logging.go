// Package logging: tint 콘솔 핸들러, lumberjack 로테이션, OTel 로그 상관관계를 묶은 로거 구성입니다.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

const (
	defaultLogFileName = "risk-guard.log"
	formatJSON         = "json"
)

// NewLogger: 로거를 생성하고 기본 로거로 등록합니다.
// correlate 가 true 면 활성 span 의 trace_id/span_id 를 레코드에 붙입니다.
func NewLogger(cfg config.LoggingConfig, correlate bool) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)
	logDir := strings.TrimSpace(cfg.LogDir)
	if logDir == "" {
		logger := newLogger(os.Stdout, level, cfg.Format, false, correlate)
		slog.SetDefault(logger)
		return logger, nil
	}

	if cfg.MaxSizeMB <= 0 || cfg.MaxBackups <= 0 || cfg.MaxAgeDays <= 0 {
		return nil, fmt.Errorf(
			"invalid log config: size=%d backups=%d age_days=%d",
			cfg.MaxSizeMB,
			cfg.MaxBackups,
			cfg.MaxAgeDays,
		)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir failed: %w", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, defaultLogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	writer := io.MultiWriter(os.Stdout, logFile)
	logger := newLogger(writer, level, cfg.Format, true, correlate)
	slog.SetDefault(logger)
	logger.Info("file_logging_enabled",
		slog.String("path", logFile.Filename),
		slog.Bool("otel_correlation", correlate),
	)
	return logger, nil
}

func newLogger(writer io.Writer, level slog.Level, format string, noColor bool, correlate bool) *slog.Logger {
	return slog.New(newHandler(writer, level, format, noColor, correlate))
}

func newHandler(writer io.Writer, level slog.Level, format string, noColor bool, correlate bool) slog.Handler {
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), formatJSON) {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level, AddSource: true})
	} else {
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			AddSource:  true,
			NoColor:    noColor,
		})
	}
	if correlate {
		handler = NewOTelHandler(handler)
	}
	return handler
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
