package classifier

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/cache"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

const verdictKeyPrefix = "riskguard:verdict:"

// VerdictCache 는 정규화 입력 해시별 문맥 판정 캐시다. fallback 판정은 저장하지 않는다.
type VerdictCache interface {
	Get(ctx context.Context, key string) (Classification, bool)
	Set(ctx context.Context, key string, value Classification)
	Ping(ctx context.Context) error
	Close()
}

// VerdictKey 는 입력을 정규화한 뒤 SHA-256 hex 키를 만든다.
func VerdictKey(text string) string {
	sum := sha256.Sum256([]byte(guard.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

type cachedVerdict struct {
	Verdict    risk.Verdict `json:"verdict"`
	Reasoning  string       `json:"reasoning"`
	Confidence float64      `json:"confidence"`
	Threats    []string     `json:"threats,omitempty"`
	Model      string       `json:"model,omitempty"`
}

func toCached(c Classification) cachedVerdict {
	return cachedVerdict{
		Verdict:    c.Verdict,
		Reasoning:  c.Reasoning,
		Confidence: c.Confidence,
		Threats:    append([]string(nil), c.Threats...),
		Model:      c.Model,
	}
}

func (v cachedVerdict) classification() Classification {
	return Classification{
		Verdict:    v.Verdict,
		Reasoning:  v.Reasoning,
		Confidence: v.Confidence,
		Threats:    append([]string(nil), v.Threats...),
		Model:      v.Model,
	}
}

// NewVerdictCache 는 설정에 맞는 판정 캐시를 만든다. 비활성이면 nil 을 반환한다.
// URL 이 있으면 Valkey, 없으면 프로세스 내 TTL 캐시를 사용한다.
func NewVerdictCache(cfg *config.Config, logger *slog.Logger) (VerdictCache, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	cacheCfg := cfg.VerdictCache
	if !cacheCfg.Enabled {
		return nil, nil
	}
	ttl := time.Duration(cacheCfg.TTLSeconds) * time.Second

	if cacheCfg.URL == "" {
		if logger != nil {
			logger.Info("verdict_cache_ready", "backend", "memory", "ttl", ttl, "max_size", cacheCfg.MaxSize)
		}
		return newMemoryVerdictCache(cacheCfg.MaxSize, ttl), nil
	}

	conn, err := parseCacheURL(cacheCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: verdict cache url: %v", risk.ErrConfiguration, err)
	}
	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse verdict cache addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.username,
		Password:     conn.password,
		InitAddress:  []string{conn.addr},
		SelectDB:     conn.selectDB,
		DisableCache: cacheCfg.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	if logger != nil {
		logger.Info("verdict_cache_ready", "backend", "valkey", "addr", conn.addr, "ttl", ttl)
	}
	return &valkeyVerdictCache{client: client, ttl: ttl, logger: logger}, nil
}

type memoryVerdictCache struct {
	entries *cache.TTLCache[string, cachedVerdict]
}

func newMemoryVerdictCache(maxSize int, ttl time.Duration) *memoryVerdictCache {
	return &memoryVerdictCache{entries: cache.NewTTLCache[string, cachedVerdict](maxSize, ttl)}
}

func (c *memoryVerdictCache) Get(_ context.Context, key string) (Classification, bool) {
	value, ok := c.entries.Get(key)
	if !ok {
		return Classification{}, false
	}
	return value.classification(), true
}

func (c *memoryVerdictCache) Set(_ context.Context, key string, value Classification) {
	if value.Fallback {
		return
	}
	c.entries.Set(key, toCached(value))
}

func (c *memoryVerdictCache) Ping(context.Context) error { return nil }

func (c *memoryVerdictCache) Close() {}

type valkeyVerdictCache struct {
	client valkey.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (c *valkeyVerdictCache) Get(ctx context.Context, key string) (Classification, bool) {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(verdictKeyPrefix+key).Build()).ToString()
	if err != nil {
		if !valkey.IsValkeyNil(err) && c.logger != nil {
			c.logger.Warn("verdict_cache_get_failed", "err", err)
		}
		return Classification{}, false
	}

	var value cachedVerdict
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		if c.logger != nil {
			c.logger.Warn("verdict_cache_decode_failed", "err", err)
		}
		return Classification{}, false
	}
	if _, ok := risk.ParseVerdict(string(value.Verdict)); !ok {
		return Classification{}, false
	}
	return value.classification(), true
}

func (c *valkeyVerdictCache) Set(ctx context.Context, key string, value Classification) {
	if value.Fallback {
		return
	}
	payload, err := json.Marshal(toCached(value))
	if err != nil {
		return
	}
	cmd := c.client.B().Set().Key(verdictKeyPrefix + key).Value(string(payload)).Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil && c.logger != nil {
		c.logger.Warn("verdict_cache_set_failed", "err", err)
	}
}

func (c *valkeyVerdictCache) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

func (c *valkeyVerdictCache) Close() {
	c.client.Close()
}
