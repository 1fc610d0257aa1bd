package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	router := gin.New()
	cfg := &config.Config{HTTP: config.HTTPConfig{
		Host:                "127.0.0.1",
		Port:                8080,
		WriteTimeoutSeconds: 30,
	}}

	server := NewHTTPServer(cfg, router)
	if server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr: %s", server.Addr)
	}
	if server.Handler != router {
		t.Fatalf("expected plain router handler")
	}
	if server.WriteTimeout != 30*time.Second {
		t.Fatalf("unexpected write timeout: %s", server.WriteTimeout)
	}

	cfg.HTTP.HTTP2Enabled = true
	server = NewHTTPServer(cfg, router)
	if server.Handler == router {
		t.Fatalf("expected wrapped handler")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewHTTPServer(&config.Config{HTTP: config.HTTPConfig{Host: "127.0.0.1"}}, router)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, server, listener, time.Second, nil)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body: %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected serve error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
