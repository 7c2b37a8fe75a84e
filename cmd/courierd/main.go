// Command courierd runs a Courier delivery engine with its HTTP
// management API. All configuration comes from COURIER_* environment
// variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/lmittmann/tint"

	"github.com/xraph/courier"
	"github.com/xraph/courier/api"
	"github.com/xraph/courier/engine"
	"github.com/xraph/courier/platform/webhook"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/store/postgres"
	"github.com/xraph/courier/store/sqlite"
)

type config struct {
	Addr     string `env:"COURIER_ADDR" envDefault:":8080"`
	LogLevel string `env:"COURIER_LOG_LEVEL" envDefault:"info"`

	// Store selects the persistence backend: memory, sqlite or postgres.
	Store       string `env:"COURIER_STORE" envDefault:"memory"`
	DatabaseURL string `env:"COURIER_DATABASE_URL"`
	SQLitePath  string `env:"COURIER_SQLITE_PATH" envDefault:"courier.db"`

	PollInterval        time.Duration `env:"COURIER_POLL_INTERVAL" envDefault:"5s"`
	BatchSize           int           `env:"COURIER_BATCH_SIZE" envDefault:"25"`
	DispatchConcurrency int           `env:"COURIER_DISPATCH_CONCURRENCY" envDefault:"8"`
	ShutdownTimeout     time.Duration `env:"COURIER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	DispatchTimeout     time.Duration `env:"COURIER_DISPATCH_TIMEOUT" envDefault:"30s"`

	Platforms []string `env:"COURIER_PLATFORMS" envSeparator:","`

	// Webhooks maps platform names to receiver endpoints, e.g.
	// COURIER_WEBHOOKS=twitter=https://hooks.internal/twitter,mastodon=https://hooks.internal/mastodon
	Webhooks     map[string]string `env:"COURIER_WEBHOOKS" envSeparator:"," envKeyValSeparator:"="`
	WebhookToken string            `env:"COURIER_WEBHOOK_TOKEN"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("courierd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	c, err := courier.New(
		courier.WithStore(st),
		courier.WithLogger(logger),
		courier.WithPollInterval(cfg.PollInterval),
		courier.WithBatchSize(cfg.BatchSize),
		courier.WithDispatchConcurrency(cfg.DispatchConcurrency),
		courier.WithPlatforms(cfg.Platforms),
	)
	if err != nil {
		return fmt.Errorf("configure courier: %w", err)
	}

	engOpts := []engine.Option{engine.WithDispatchTimeout(cfg.DispatchTimeout)}
	for name, endpoint := range cfg.Webhooks {
		var adapterOpts []webhook.Option
		if cfg.WebhookToken != "" {
			adapterOpts = append(adapterOpts, webhook.WithAuthToken(cfg.WebhookToken))
		}
		adapter, adapterErr := webhook.New(name, endpoint, adapterOpts...)
		if adapterErr != nil {
			return fmt.Errorf("configure webhook adapter %s: %w", name, adapterErr)
		}
		engOpts = append(engOpts, engine.WithAdapter(adapter))
	}

	eng, err := engine.Build(c, engOpts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(eng, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop engine: %w", err)
	}

	logger.Info("courierd stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
	}))
}

func openStore(ctx context.Context, cfg config) (courier.Storer, error) {
	switch cfg.Store {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("COURIER_DATABASE_URL is required for the postgres store")
		}
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
