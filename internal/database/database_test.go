package database

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

func TestHandleOpensSQLite(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:     DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "riskguard.db"),
		},
	}
	handle := NewHandle(cfg, nil)
	t.Cleanup(handle.Close)

	if err := handle.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	db, err := handle.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.Exec("CREATE TABLE probe (id INTEGER)").Error; err != nil {
		t.Fatalf("unexpected exec error: %v", err)
	}
}

func TestHandleNilConfig(t *testing.T) {
	handle := NewHandle(nil, nil)
	if _, err := handle.Get(context.Background()); err == nil {
		t.Fatalf("expected error for nil config")
	}

	var nilHandle *Handle
	if _, err := nilHandle.Get(context.Background()); err == nil {
		t.Fatalf("expected error for nil handle")
	}
	nilHandle.Close()
}

func TestShouldFallbackToLocalhost(t *testing.T) {
	dnsErr := &net.DNSError{Name: "postgres", Err: "no such host"}
	if !shouldFallbackToLocalhost(dnsErr, "postgres") {
		t.Fatalf("expected fallback for unresolved postgres host")
	}
	if shouldFallbackToLocalhost(dnsErr, "db.internal") {
		t.Fatalf("did not expect fallback for custom host")
	}
	if shouldFallbackToLocalhost(errors.New("connection refused"), "postgres") {
		t.Fatalf("did not expect fallback for connection refused")
	}
	if shouldFallbackToLocalhost(nil, "postgres") {
		t.Fatalf("did not expect fallback without error")
	}
}
