package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradeflow/internal/adapter"
	"github.com/rickgao/tradeflow/internal/config"
	"github.com/rickgao/tradeflow/internal/connection"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tradeflow.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger until the config says otherwise
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tradeflow",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feeds", len(cfg.Feeds),
		"retention", cfg.Retention.Spec,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	manager := connection.NewManager(managerConfig(cfg), logger)
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		manager.Stop(shutdownCtx)
	}()

	for name, e := range cfg.Exchanges {
		if e.Retention == "" {
			continue
		}
		ex, _ := model.ParseExchange(name)
		if err := manager.SetRetention(ex, e.Retention); err != nil {
			logger.Error("failed to set retention", "exchange", name, "error", err)
			os.Exit(1)
		}
	}

	feeds := newFeedTracker(logger)

	// Start health server early so we can watch connections come up
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(manager, feeds, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Subscribe every feed; the first failure aborts startup
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range cfg.Feeds {
		ex, _ := model.ParseExchange(f.Exchange)
		consumer := feeds.consumer(ex, f)
		g.Go(func() error {
			n, err := manager.Subscribe(gctx, ex, f.Symbol, consumer)
			if err != nil {
				return fmt.Errorf("subscribe %s %s: %w", ex, f.Symbol, err)
			}
			logger.Info("feed subscribed", "exchange", ex.String(), "symbol", f.Symbol, "consumers", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("failed to subscribe feeds", "error", err)
		shutdownHealth(healthServer, logger)
		os.Exit(1)
	}

	logger.Info("tradeflow running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownHealth(healthServer, logger)
	logger.Info("tradeflow stopped")
}

func shutdownHealth(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// managerConfig maps the config file onto the connection manager.
func managerConfig(cfg *config.Config) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.Client = connection.ClientConfig{
		HandshakeTimeout: cfg.Connections.HandshakeTimeout,
		PingInterval:     cfg.Connections.PingInterval,
		PingTimeout:      cfg.Connections.PingTimeout,
		WriteTimeout:     cfg.Connections.WriteTimeout,
		BufferSize:       cfg.Connections.BufferSize,
	}
	mc.Retention = cfg.Retention.Spec

	for name, e := range cfg.Exchanges {
		ex, err := model.ParseExchange(name)
		if err != nil {
			continue
		}
		mc.Adapters[ex] = adapter.Options{
			URL:          e.WSURL,
			ReleaseEvent: e.ReleaseEvent,
		}
	}
	return mc
}
