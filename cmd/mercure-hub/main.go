// Command mercure-hub runs a standalone Mercure protocol hub: it
// accepts publications over HTTP and fans them out as Server-Sent
// Events to authorized subscribers. Flag handling here is deliberately
// minimal (no `serve`/`issue` subcommand tree).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mercure-hub/hub/internal/auth"
	"github.com/mercure-hub/hub/internal/config"
	"github.com/mercure-hub/hub/internal/hub"
	"github.com/mercure-hub/hub/internal/logging"
	"github.com/mercure-hub/hub/internal/server"
	"github.com/mercure-hub/hub/internal/transport"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.TransportDSN, "transport", cfg.TransportDSN, `transport DSN: "memory://" or "redis://host:port/db"`)
	flag.IntVar(&cfg.MemoryRetention, "memory-retention", cfg.MemoryRetention, "in-memory transport ring buffer capacity (0 = unbounded)")
	jwk := flag.String("jwk", "", "shared JWK JSON used to verify both publisher and subscriber tokens")
	jwksURL := flag.String("jwks-url", "", "shared JWK-Set URL used to verify both publisher and subscriber tokens")
	flag.BoolVar(&cfg.AnonymousAccess, "anonymous", cfg.AnonymousAccess, "allow tokenless subscription")
	flag.BoolVar(&cfg.QueryAuthorizationEnabled, "query-authorization", cfg.QueryAuthorizationEnabled, "allow ?authorization= as a token source")
	flag.StringVar(&cfg.CookieName, "cookie-name", cfg.CookieName, "cookie name carrying the subscriber token")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat", 0, "per-subscriber heartbeat interval (0 disables)")
	flag.IntVar(&cfg.MaxSubscribers, "max-subscribers", 0, "cap on total concurrent subscribers (0 = unbounded)")
	flag.IntVar(&cfg.MaxTopicsPerSubscription, "max-topics", 0, "cap on topic params per subscribe request (0 = unbounded)")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown grace period")
	logFormat := flag.String("log-format", "text", `log backend: "text" (log/slog) or "zap" (go.uber.org/zap production encoder)`)
	flag.Parse()

	cfg.Keys.JWK = []byte(*jwk)
	cfg.Keys.JWKSURL = *jwksURL

	appLogger, err := buildLogger(*logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mercure-hub: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("mercure-hub exited with error", "error", err)
		os.Exit(1)
	}
}

// buildLogger selects the structured-logging backend named by format:
// "text" (the default, log/slog with a text handler) or "zap" (a
// go.uber.org/zap production encoder, for deployments that want zap's
// sampling and JSON output).
func buildLogger(format string) (logging.Logger, error) {
	switch format {
	case "", "text":
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		return logging.NewSlog(logger), nil
	case "zap":
		built, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("zap logger: %w", err)
		}
		return logging.NewZap(built), nil
	default:
		return nil, fmt.Errorf("unknown -log-format %q (want \"text\" or \"zap\")", format)
	}
}

func run(cfg config.Configuration, appLogger logging.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t, err := buildTransport(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := t.Connect(ctx, cfg.TransportDSN); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	resolver, err := auth.NewKeyResolver(ctx, cfg.Keys)
	if err != nil {
		return fmt.Errorf("key resolver: %w", err)
	}

	h := hub.New(t)
	router := server.NewRouter(cfg, h, resolver, appLogger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
		// BaseContext ties every in-flight request's context to ctx, so
		// cancelling ctx below (on shutdown) drives each Subscriber's
		// `<-ctx.Done()` select in internal/server.SubscribeHandler,
		// letting Shutdown's wait-for-active-connections complete
		// promptly instead of blocking on long-lived SSE streams.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("mercure-hub listening", "addr", cfg.Addr, "transport", cfg.TransportDSN)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-sigCh:
		appLogger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("graceful shutdown timed out, forcing close", "error", err)
		_ = httpServer.Close()
	}

	if err := t.Close(); err != nil {
		appLogger.Warn("transport close failed", "error", err)
	}

	return nil
}

func buildTransport(cfg config.Configuration, appLogger logging.Logger) (transport.Transport, error) {
	switch {
	case strings.HasPrefix(cfg.TransportDSN, "redis://"):
		return transport.NewStreamTransport(appLogger), nil
	default:
		return transport.NewMemoryTransport(cfg.MemoryRetention), nil
	}
}
