package classifier

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultValkeyPort = "6379"

type cacheConnInfo struct {
	addr     string
	username string
	password string
	selectDB int
	useTLS   bool
}

// parseCacheURL 은 redis://, rediss:// URL 또는 host[:port] 주소를 해석한다.
func parseCacheURL(raw string) (cacheConnInfo, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return cacheConnInfo{}, errors.New("verdict cache url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		return parseCacheAddr(trimmed)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return cacheConnInfo{}, fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss", "valkey", "valkeys":
	default:
		return cacheConnInfo{}, fmt.Errorf("unsupported verdict cache scheme %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return cacheConnInfo{}, errors.New("verdict cache host missing")
	}
	port := parsed.Port()
	if port == "" {
		port = defaultValkeyPort
	}

	info := cacheConnInfo{
		addr:   net.JoinHostPort(host, port),
		useTLS: strings.HasSuffix(strings.ToLower(parsed.Scheme), "s"),
	}
	if path := strings.TrimPrefix(parsed.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil || db < 0 {
			return cacheConnInfo{}, fmt.Errorf("invalid verdict cache db %q", path)
		}
		info.selectDB = db
	}
	if parsed.User != nil {
		info.username = parsed.User.Username()
		info.password, _ = parsed.User.Password()
	}
	return info, nil
}

func parseCacheAddr(addr string) (cacheConnInfo, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) || addrErr.Err != "missing port in address" {
			return cacheConnInfo{}, fmt.Errorf("invalid verdict cache address: %w", err)
		}
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		port = defaultValkeyPort
	}
	if strings.TrimSpace(host) == "" {
		return cacheConnInfo{}, errors.New("verdict cache host missing")
	}
	return cacheConnInfo{addr: net.JoinHostPort(host, port)}, nil
}
