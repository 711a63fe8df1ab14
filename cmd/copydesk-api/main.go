package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"copydesk/internal/config"
	"copydesk/internal/httpapi"
	"copydesk/internal/identity"
	"copydesk/internal/observability"
	"copydesk/internal/pipeline"
	"copydesk/internal/session"
	"copydesk/internal/upstream/gemini"

	"golang.org/x/sync/errgroup"
)

type geminiBackend interface {
	pipeline.Sender
	httpapi.UpstreamChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := newBackend(ctx, cfg, metrics)
	if err != nil {
		logger.Error("gemini client setup failed", "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	analyzer := pipeline.New(backend, cfg.AnalysisTimeout,
		pipeline.WithPolicy(pipeline.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  cfg.RetryMultiplier,
		}),
		pipeline.WithLogger(logger),
		pipeline.WithObserver(metrics),
	)
	sessions := session.NewStore(cfg.SessionTTL, cfg.MaxSessions)
	editor := identity.New(cfg.InitialAuthToken, identity.NewVerifier(cfg.AuthSigningKey, ""), logger)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Analyzer:       analyzer,
		Sessions:       sessions,
		Identity:       editor,
		Upstream:       backend,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       35 * time.Second,
		WriteTimeout:      cfg.AnalysisTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.ListenAddr, "transport", cfg.GeminiTransport, "model", cfg.GeminiModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return editor.Run(gctx)
	})
	g.Go(func() error {
		return sessions.RunJanitor(gctx, time.Minute)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newBackend(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (geminiBackend, func(), error) {
	if cfg.GeminiTransport == config.TransportSDK {
		client, err := gemini.NewSDKClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTemperature, metrics.ObserveUpstream)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	client := gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, httpClient,
		gemini.WithObserver(metrics.ObserveUpstream),
		gemini.WithTemperature(cfg.GeminiTemperature),
	)
	return client, func() {}, nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
