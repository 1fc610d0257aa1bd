package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Handle 은 usage 와 보안 이벤트 저장소가 공유하는 지연 연결 DB 핸들이다.
// 첫 Get 호출에서 연결하며, 실패하면 다음 호출에서 다시 시도한다.
type Handle struct {
	cfg    *config.Config
	logger *slog.Logger
	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
}

// NewHandle 는 DB 핸들을 생성한다. 연결은 지연된다.
func NewHandle(cfg *config.Config, logger *slog.Logger) *Handle {
	return &Handle{cfg: cfg, logger: logger}
}

// FromDB 는 이미 열린 gorm DB 로 핸들을 만든다 (테스트용 sqlite 메모리 DB 등).
func FromDB(db *gorm.DB) *Handle {
	handle := &Handle{db: db}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			handle.sqlDB = sqlDB
		}
	}
	return handle
}

// Get 은 연결된 gorm DB 를 반환한다.
func (h *Handle) Get(ctx context.Context) (*gorm.DB, error) {
	if h == nil {
		return nil, errors.New("database handle is nil")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db.WithContext(ctx), nil
	}
	if h.cfg == nil {
		return nil, errors.New("database config is nil")
	}

	db, hostUsed, err := open(h.cfg.Database, h.logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get db handle: %w", err)
	}
	applyPool(sqlDB, h.cfg.Database)

	if h.logger != nil {
		h.logger.Info("db_connected", "driver", h.cfg.Database.Driver, "host", hostUsed, "name", h.cfg.Database.Name)
	}

	h.db = db
	h.sqlDB = sqlDB
	return db.WithContext(ctx), nil
}

// Ping 은 연결 상태를 확인한다.
func (h *Handle) Ping(ctx context.Context) error {
	db, err := h.Get(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get db handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// Close 는 DB 연결을 닫는다.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sqlDB == nil {
		return
	}
	_ = h.sqlDB.Close()
	h.sqlDB = nil
	h.db = nil
}

func open(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, string, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	if strings.EqualFold(cfg.Driver, DriverSQLite) {
		db, err := gorm.Open(sqlite.Open(cfg.DSN()), gormCfg)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite db: %w", err)
		}
		return db, cfg.SQLitePath, nil
	}

	hostUsed := cfg.Host
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil && shouldFallbackToLocalhost(err, cfg.Host) {
		fallback := cfg
		fallback.Host = "127.0.0.1"
		db, err = gorm.Open(postgres.Open(fallback.DSN()), gormCfg)
		if err == nil {
			hostUsed = fallback.Host
			if logger != nil {
				logger.Warn("db_host_fallback", "configured_host", cfg.Host, "effective_host", hostUsed)
			}
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("open postgres db: %w", err)
	}
	return db, hostUsed, nil
}

func applyPool(sqlDB *sql.DB, cfg config.DatabaseConfig) {
	if strings.EqualFold(cfg.Driver, DriverSQLite) {
		// sqlite 는 단일 writer
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return
	}
	sqlDB.SetMaxIdleConns(cfg.MinPool)
	sqlDB.SetMaxOpenConns(cfg.MaxPool)
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	if cfg.ConnMaxIdleTimeMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)
	}
}

// shouldFallbackToLocalhost 는 docker 서비스명 "postgres" 가 해석되지 않는 로컬 실행 환경을 감지한다.
func shouldFallbackToLocalhost(err error, host string) bool {
	if err == nil {
		return false
	}
	if !strings.EqualFold(host, "postgres") {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return strings.EqualFold(dnsErr.Name, host)
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "no such host") && strings.Contains(lower, strings.ToLower(host))
}
