// streamtest connects to one exchange and streams normalized trades to console.
// Usage: go run ./cmd/streamtest --exchange gdax --symbol BTC-USD
//
// Pass --config to pick up WebSocket URLs and timeouts from a tradeflow config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tradeflow/internal/adapter"
	"github.com/rickgao/tradeflow/internal/config"
	"github.com/rickgao/tradeflow/internal/connection"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/subscription"
)

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	exchangeName := flag.String("exchange", "gdax", "exchange: bitfinex, bitmex, gdax, bitflyer")
	symbol := flag.String("symbol", "", "symbol (defaults to the exchange's default)")
	retentionSpec := flag.String("retention", "100", "retention spec, e.g. 10m or 100")
	verbose := flag.Bool("verbose", false, "print full snapshot JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ex, err := model.ParseExchange(*exchangeName)
	if err != nil {
		logger.Error("invalid exchange", "error", err)
		os.Exit(1)
	}
	if *symbol == "" {
		*symbol = ex.Info().DefaultSymbol
	}

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Retention = *retentionSpec
	if *configPath != "" {
		cfg, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		e := cfg.Exchange(ex.String())
		mgrCfg.Adapters[ex] = adapter.Options{URL: e.WSURL, ReleaseEvent: e.ReleaseEvent}
		mgrCfg.Client.HandshakeTimeout = cfg.Connections.HandshakeTimeout
		mgrCfg.Client.PingInterval = cfg.Connections.PingInterval
		mgrCfg.Client.PingTimeout = cfg.Connections.PingTimeout
		mgrCfg.Client.WriteTimeout = cfg.Connections.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	connMgr := connection.NewManager(mgrCfg, logger)
	if err := connMgr.Start(context.Background()); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	snapshots := make(chan []model.Trade, 100)
	consumer := subscription.NewConsumer(func(trades []model.Trade) {
		select {
		case snapshots <- trades:
		default:
			logger.Warn("printer behind, skipping snapshot")
		}
	})

	logger.Info("subscribing", "exchange", ex.String(), "symbol", *symbol)
	if _, err := connMgr.Subscribe(ctx, ex, *symbol, consumer); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	go printTrades(ctx, snapshots, ex.Info().Precision, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range connMgr.Stats() {
					logger.Info("stats",
						"exchange", s.Exchange.String(),
						"state", s.State,
						"drift_ms", s.DriftMs,
						"received", s.Received,
						"applied", s.Applied,
						"ignored", s.Ignored,
					)
				}
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if n, err := connMgr.Unsubscribe(ex, *symbol, consumer); err != nil {
		logger.Warn("unsubscribe failed", "error", err)
	} else if n == connection.Released {
		logger.Info("connection released")
	}
	connMgr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printTrades(ctx context.Context, snapshots <-chan []model.Trade, precision model.Precision, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case trades := <-snapshots:
			if len(trades) == 0 {
				continue
			}
			if verbose {
				data, _ := json.MarshalIndent(trades, "", "  ")
				fmt.Printf("[SNAPSHOT] %s\n", data)
				continue
			}

			t := trades[0]
			fmt.Printf("[TRADE] %s %s side=%s size=%s price=%s slippage=%d buffered=%d\n",
				time.UnixMilli(t.Time).UTC().Format("15:04:05.000"),
				t.Symbol,
				t.Side,
				t.Size.StringFixed(int32(precision.Size)),
				t.Price.StringFixed(int32(precision.Price)),
				len(t.Slippage),
				len(trades),
			)
		}
	}
}
