package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/falox/observability-assistant-router/internal/audit"
	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/httpserver"
	"github.com/falox/observability-assistant-router/internal/pipeline"
	"github.com/falox/observability-assistant-router/internal/proxy"
	"github.com/falox/observability-assistant-router/internal/retry"
	"github.com/falox/observability-assistant-router/internal/routing"
	"github.com/falox/observability-assistant-router/internal/semantic"
	"github.com/falox/observability-assistant-router/internal/session"
)

// matcherCacheSize bounds the matcher's LRU cache of example embeddings,
// which is used only for similarity checks against agents absent from
// the prebuilt index.
const matcherCacheSize = 2048

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat router HTTP server",
		Long: `Start the HTTP server that accepts AG-UI chat requests at
POST /api/agui/chat, routes them to a configured backend agent, and
streams the response back as AG-UI server-sent events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	settings := config.LoadSettings()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(settings.LogLevel)}))
	slog.SetDefault(logger)

	auditLog := audit.NewLogger(parseLevel(settings.AuditLogLevel))

	embedder := semantic.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), settings.EmbeddingModel)

	buildIndex := func(catalog *config.Catalog) (*semantic.Index, error) {
		return semantic.BuildIndex(ctx, embedder, catalog)
	}

	reloader, err := config.NewReloader(settings.ConfigPath, buildIndex, logger, auditLog)
	if err != nil {
		return fmt.Errorf("load agent catalog: %w", err)
	}
	if settings.HotReloadEnabled {
		if err := reloader.StartWatching(settings.HotReloadDebounceSeconds); err != nil {
			logger.Warn("failed to start config watcher, continuing without hot reload", "error", err)
		} else {
			defer reloader.StopWatching()
		}
	}

	matcher, err := semantic.NewMatcher(embedder, matcherCacheSize, logger)
	if err != nil {
		return fmt.Errorf("build semantic matcher: %w", err)
	}

	var sessions *session.Store
	if settings.SessionEnabled {
		sessions = session.New(logger)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	retryConfig := retry.Config{MaxAttempts: settings.RetryAttempts, BaseDelayMs: settings.RetryBackoffMs, MaxDelayMs: 5000}

	router := routing.New(httpClient, logger)
	proxyClient := proxy.New(httpClient, retryConfig, logger)

	pipe := pipeline.New(router, proxyClient, sessions, auditLog, logger, pipeline.Settings{
		AuditEnabled:        settings.AuditEnabled,
		StreamBufferEnabled: settings.StreamBufferEnabled,
		StreamBufferMaxSize: settings.StreamBufferMaxSize,
		SessionTimeoutMin:   settings.SessionTimeoutMin,
	})

	srv := httpserver.New(pipe, reloader, matcher, logger)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disabled: chat responses are SSE streams
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ServeContext(gctx, httpSrv)
	})
	if sessions != nil {
		g.Go(func() error {
			runSessionCleanup(gctx, sessions, reloader, settings.SessionTimeoutMin, logger)
			return nil
		})
	}
	return g.Wait()
}

// sessionCleanupInterval is deliberately coarse: expiry is already
// correct lazily on every Get/Touch; this sweep only reclaims memory
// held by threads that went idle and were never revisited.
const sessionCleanupInterval = 5 * time.Minute

func runSessionCleanup(ctx context.Context, sessions *session.Store, reloader *config.Reloader[*semantic.Index], fallbackMin int, log *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.CleanupExpired(reloader.Catalog().SessionTimeout(fallbackMin))
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
