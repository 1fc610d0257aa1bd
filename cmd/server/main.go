package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/di"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	app, err := di.InitializeApp()
	if err != nil {
		log.Printf("failed to initialize app: %v", err)
		return 1
	}

	shutdownTimeout := time.Duration(app.Config.HTTP.ShutdownTimeoutSeconds) * time.Second
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Close(closeCtx)
	}()

	config.LogEnvStatus(app.Config, app.Logger)

	listener, err := net.Listen("tcp", app.Server.Addr)
	if err != nil {
		app.Logger.Error("http_server_listen_failed", "addr", app.Server.Addr, "err", err)
		return 1
	}
	app.Logger.Info(
		"http_server_start",
		"addr", listener.Addr().String(),
		"http2", app.Config.HTTP.HTTP2Enabled,
		"contextual_layer", app.Config.Guard.UseContextualLayer,
		"escalation_threshold", app.Config.Guard.EscalationThreshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, app.Server, listener, shutdownTimeout, app.Logger); err != nil {
		app.Logger.Error("http_server_failed", "err", err)
		return 1
	}
	app.Logger.Info("http_server_stopped")
	return 0
}
