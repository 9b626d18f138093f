// feedtest connects to the Polymarket CLOB WebSocket, subscribes the
// tokens of currently discovered markets, and streams normalized book
// updates to the console.
// Usage: go run ./cmd/feedtest --config configs/monitor.local.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmorrow/spreadwatch/internal/config"
	"github.com/kmorrow/spreadwatch/internal/feed"
	"github.com/kmorrow/spreadwatch/internal/gamma"
	"github.com/kmorrow/spreadwatch/internal/market"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	tokens := flag.String("tokens", "", "comma-separated token IDs to subscribe (skips discovery)")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var ids []string
	if *tokens != "" {
		ids = strings.Split(*tokens, ",")
	} else {
		// Discover current markets and subscribe their tokens
		client := gamma.NewClient(
			cfg.Discovery.GammaURL,
			cfg.Discovery.ClobURL,
			gamma.WithLogger(logger),
		)
		table := market.NewTable()
		registry := market.NewRegistry(market.Config{
			PageLimit: cfg.Discovery.PageLimit,
			Assets:    cfg.Discovery.Assets,
			Timeframe: cfg.Discovery.Timeframe,
		}, client, table, logger)

		if _, err := registry.Refresh(ctx, time.Now()); err != nil {
			logger.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		ids = table.Instruments()
		logger.Info("discovered markets", "markets", table.Len(), "tokens", len(ids))
	}

	if len(ids) == 0 {
		logger.Error("no tokens to subscribe")
		os.Exit(1)
	}

	session := feed.New(feed.Config{
		WSURL:              cfg.Feed.WSURL,
		PingInterval:       cfg.Feed.PingInterval,
		StaleTimeout:       cfg.Feed.StaleTimeout,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		BufferSize:         cfg.Feed.BufferSize,
	}, logger)

	if err := session.Subscribe(ids...); err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := session.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("feed stopped", "error", err)
			cancel()
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"connected", session.IsConnected(),
					"messages", session.MessagesReceived(),
					"reconnects", session.Reconnects(),
					"subscribed", session.SubscribedCount(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "tokens", len(ids))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return
		case u := <-session.Updates():
			fmt.Printf("[BOOK] token=%s ask=%.3f liquidity=%.1f depth=%t at=%s\n",
				shortToken(u.InstrumentID), u.BestAsk, u.AskLiquidity, u.HasLiquidity,
				u.Timestamp.Format(time.RFC3339))
		}
	}
}

// shortToken trims long CLOB token IDs for console output.
func shortToken(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
