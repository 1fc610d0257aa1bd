package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

const gemini3MinTemperature = 1.0

var (
	configOnce  sync.Once
	configValue *Config
)

// GeminiConfig 는 문맥 분류기가 호출하는 Gemini 설정이다.
type GeminiConfig struct {
	APIKeys         []string
	Temperature     float64
	MaxOutputTokens int
	ThinkingLevel   string
}

// PrimaryKey 는 기본 API 키를 반환한다.
func (g GeminiConfig) PrimaryKey() string {
	if len(g.APIKeys) == 0 {
		return ""
	}
	return g.APIKeys[0]
}

// TemperatureForModel 는 모델별 temperature 를 계산한다.
func (g GeminiConfig) TemperatureForModel(model string) float64 {
	if isGemini3(model) {
		if math.IsNaN(g.Temperature) || math.IsInf(g.Temperature, 0) {
			return gemini3MinTemperature
		}
		return math.Max(gemini3MinTemperature, g.Temperature)
	}
	return g.Temperature
}

// GuardConfig 는 패턴 계층과 결정 게이트 설정이다.
type GuardConfig struct {
	UseContextualLayer  bool
	EscalationThreshold string
	RulepacksDir        string
	CacheMaxSize        int
	CacheTTLSeconds     int
	Sanitizer           string
	RefusalMessage      string
	FileExcerptChars    int
}

// Threshold 는 게이트용 ThresholdConfig 를 만든다.
func (g GuardConfig) Threshold() (risk.ThresholdConfig, error) {
	level, err := risk.ParseThreshold(g.EscalationThreshold)
	if err != nil {
		return risk.ThresholdConfig{}, err
	}
	return risk.ThresholdConfig{
		UseContextualLayer:  g.UseContextualLayer,
		EscalationThreshold: level,
	}, nil
}

// ClassifierConfig 는 문맥 분류기 설정이다.
type ClassifierConfig struct {
	Model              string
	TimeoutSeconds     int
	FallbackVerdict    string
	InputPricePerMTok  float64
	OutputPricePerMTok float64
}

// Fallback 은 실패 시 사용할 판정을 반환한다.
func (c ClassifierConfig) Fallback() (risk.Verdict, error) {
	verdict, ok := risk.ParseVerdict(c.FallbackVerdict)
	if !ok {
		return "", fmt.Errorf("%w: classifier fallback verdict %q", risk.ErrConfiguration, c.FallbackVerdict)
	}
	return verdict, nil
}

// VerdictCacheConfig 는 문맥 판정 캐시 설정이다.
type VerdictCacheConfig struct {
	Enabled      bool
	URL          string
	TTLSeconds   int
	MaxSize      int
	DisableCache bool
}

// SecurityLogConfig 는 보안 이벤트 저장소 설정이다.
type SecurityLogConfig struct {
	Backend string
	Dir     string
}

// LoggingConfig 는 로깅 설정이다.
type LoggingConfig struct {
	Level      string
	Format     string // text | json
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig 는 HTTP 서버 설정이다.
type HTTPConfig struct {
	Host                   string
	Port                   int
	HTTP2Enabled           bool
	ReadTimeoutSeconds     int
	WriteTimeoutSeconds    int
	ShutdownTimeoutSeconds int
}

// HTTPAuthConfig 는 API 키 인증 설정이다. 키 교체 기간에는 여러 키를 허용한다.
type HTTPAuthConfig struct {
	APIKeys []string
}

// HTTPRateLimitConfig 는 요청 제한 설정이다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// DatabaseConfig 는 DB 연결 및 저장 설정이다.
type DatabaseConfig struct {
	Driver                               string
	SQLitePath                           string
	Host                                 string
	Port                                 int
	Name                                 string
	User                                 string
	Password                             string
	MinPool                              int
	MaxPool                              int
	ConnMaxLifetimeMinutes               int
	ConnMaxIdleTimeMinutes               int
	UsageEnabled                         bool
	UsageBatchEnabled                    bool
	UsageBatchFlushIntervalSeconds       int
	UsageBatchFlushTimeoutSeconds        int
	UsageBatchMaxPendingRequests         int
	UsageBatchMaxBackoffSeconds          int
	UsageBatchErrorLogMaxIntervalSeconds int
}

// DSN 은 DB 접속 문자열을 반환한다.
func (d DatabaseConfig) DSN() string {
	if strings.EqualFold(d.Driver, "sqlite") {
		return d.SQLitePath
	}
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// TelemetryConfig 는 OpenTelemetry 설정이다.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// Config 는 애플리케이션 전체 설정이다.
type Config struct {
	Gemini        GeminiConfig
	Guard         GuardConfig
	Classifier    ClassifierConfig
	VerdictCache  VerdictCacheConfig
	SecurityLog   SecurityLogConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Database      DatabaseConfig
	Telemetry     TelemetryConfig
}

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다. 실패하면 risk.ErrConfiguration 을 감싼다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.Guard.Threshold(); err != nil {
		return err
	}
	if _, err := c.Classifier.Fallback(); err != nil {
		return err
	}
	if c.Classifier.Model != "" && !isGemini3(c.Classifier.Model) {
		return fmt.Errorf("%w: gemini 3 only: model=%s", risk.ErrConfiguration, c.Classifier.Model)
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: classifier timeout must be positive", risk.ErrConfiguration)
	}
	switch strings.ToLower(c.SecurityLog.Backend) {
	case "file", "database":
	default:
		return fmt.Errorf("%w: security log backend %q", risk.ErrConfiguration, c.SecurityLog.Backend)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: database driver %q", risk.ErrConfiguration, c.Database.Driver)
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	envFilePresent := fileExists(".env")
	primaryKey := maskSecret(cfg.Gemini.PrimaryKey())
	logger.Debug(
		"env_status",
		"env_file", envFilePresent,
		"gemini_keys", len(cfg.Gemini.APIKeys),
		"primary_key", primaryKey,
		"classifier_model", cfg.Classifier.Model,
		"classifier_timeout", cfg.Classifier.TimeoutSeconds,
		"fallback_verdict", cfg.Classifier.FallbackVerdict,
		"use_contextual_layer", cfg.Guard.UseContextualLayer,
		"escalation_threshold", cfg.Guard.EscalationThreshold,
		"security_log_backend", cfg.SecurityLog.Backend,
		"security_log_dir", cfg.SecurityLog.Dir,
		"verdict_cache", cfg.VerdictCache.Enabled,
		"db_driver", cfg.Database.Driver,
		"db_host", cfg.Database.Host,
	)

	if cfg.Guard.UseContextualLayer && len(cfg.Gemini.APIKeys) == 0 {
		logger.Error("env_missing_google_api_key")
	}
}

func buildConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			APIKeys:         parseAPIKeys(),
			Temperature:     getEnvFloat("GEMINI_TEMPERATURE", 0),
			MaxOutputTokens: getEnvInt("GEMINI_MAX_TOKENS", 1024),
			ThinkingLevel:   getEnvString("GEMINI_THINKING_LEVEL", "minimal"),
		},
		Guard: GuardConfig{
			UseContextualLayer:  getEnvBool("GUARD_USE_CONTEXTUAL_LAYER", true),
			EscalationThreshold: getEnvString("GUARD_ESCALATION_THRESHOLD", "low"),
			RulepacksDir:        getEnvString("GUARD_RULEPACKS_DIR", ""),
			CacheMaxSize:        getEnvInt("GUARD_CACHE_SIZE", 10000),
			CacheTTLSeconds:     getEnvInt("GUARD_CACHE_TTL", 3600),
			Sanitizer:           getEnvString("GUARD_SANITIZER", "escape"),
			RefusalMessage:      getEnvString("GUARD_REFUSAL_MESSAGE", defaultRefusalMessage),
			FileExcerptChars:    max(1, getEnvNonNegativeInt("GUARD_FILE_EXCERPT_CHARS", 5000)),
		},
		Classifier: ClassifierConfig{
			Model:              getEnvString("CLASSIFIER_MODEL", getEnvString("GEMINI_MODEL", "gemini-3-flash-preview")),
			TimeoutSeconds:     getEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 10),
			FallbackVerdict:    getEnvString("CLASSIFIER_FALLBACK_VERDICT", "suspicious"),
			InputPricePerMTok:  getEnvFloat("CLASSIFIER_INPUT_PRICE_PER_MTOK", 0.5),
			OutputPricePerMTok: getEnvFloat("CLASSIFIER_OUTPUT_PRICE_PER_MTOK", 3.0),
		},
		VerdictCache: VerdictCacheConfig{
			Enabled:      getEnvBool("VERDICT_CACHE_ENABLED", false),
			URL:          getEnvString("VERDICT_CACHE_URL", ""),
			TTLSeconds:   max(1, getEnvNonNegativeInt("VERDICT_CACHE_TTL_SECONDS", 600)),
			MaxSize:      max(1, getEnvNonNegativeInt("VERDICT_CACHE_SIZE", 10000)),
			DisableCache: getEnvBool("VERDICT_CACHE_DISABLE_CLIENT_CACHE", true),
		},
		SecurityLog: SecurityLogConfig{
			Backend: strings.ToLower(getEnvString("SECURITY_LOG_BACKEND", "file")),
			Dir:     getEnvString("SECURITY_LOG_DIR", "logs/security"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40531),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
			// 쓰기 타임아웃은 분류기 타임아웃보다 길어야 함
			ReadTimeoutSeconds:     getEnvNonNegativeInt("HTTP_READ_TIMEOUT_SECONDS", 15),
			WriteTimeoutSeconds:    getEnvNonNegativeInt("HTTP_WRITE_TIMEOUT_SECONDS", 60),
			ShutdownTimeoutSeconds: max(1, getEnvNonNegativeInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 10)),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKeys: parseHTTPAPIKeys(),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Database: DatabaseConfig{
			Driver:                               strings.ToLower(getEnvString("DB_DRIVER", "postgres")),
			SQLitePath:                           getEnvString("DB_SQLITE_PATH", "riskguard.db"),
			Host:                                 getEnvString("DB_HOST", "localhost"),
			Port:                                 getEnvInt("DB_PORT", 5432),
			Name:                                 getEnvString("DB_NAME", "riskguard"),
			User:                                 getEnvString("DB_USER", "riskguard"),
			Password:                             getEnvString("DB_PASSWORD", ""),
			MinPool:                              getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                              getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),
			ConnMaxIdleTimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			UsageEnabled:                         getEnvBool("DB_USAGE_ENABLED", true),
			UsageBatchEnabled:                    getEnvBool("DB_USAGE_BATCH_ENABLED", false),
			UsageBatchFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			UsageBatchFlushTimeoutSeconds:        max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_TIMEOUT_SECONDS", 5)),
			UsageBatchMaxPendingRequests:         max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_PENDING_REQUESTS", 50)),
			UsageBatchMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_BACKOFF_SECONDS", 60),
			UsageBatchErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_BATCH_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
		Telemetry: readTelemetryConfig(),
	}
}

const defaultRefusalMessage = "This input was blocked by the security policy. Please rephrase your request."
