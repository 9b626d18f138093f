package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmorrow/spreadwatch/internal/config"
	"github.com/kmorrow/spreadwatch/internal/feed"
	"github.com/kmorrow/spreadwatch/internal/gamma"
	"github.com/kmorrow/spreadwatch/internal/market"
	"github.com/kmorrow/spreadwatch/internal/monitor"
	"github.com/kmorrow/spreadwatch/internal/store"
	"github.com/kmorrow/spreadwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	flag.Parse()

	// .env is optional; config values reference env vars via ${VAR}
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gamma_url", cfg.Discovery.GammaURL,
		"ws_url", cfg.Feed.WSURL,
	)

	// Create context with cancellation
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Discovery client
	gammaClient := gamma.NewClient(
		cfg.Discovery.GammaURL,
		cfg.Discovery.ClobURL,
		gamma.WithLogger(logger),
		gamma.WithTimeout(cfg.Discovery.Timeout),
		gamma.WithRetries(cfg.Discovery.MaxRetries, time.Second),
		gamma.WithRateLimit(cfg.Discovery.RatePerSec),
	)

	// Market table, detector, registry
	table := market.NewTable()
	detector := market.NewDetector(market.DetectorConfig{
		MinSpreadPct: cfg.Detector.MinSpreadPct,
		PriceFloor:   cfg.Detector.PriceFloor,
		PriceCeil:    cfg.Detector.PriceCeil,
		MinTick:      cfg.Detector.MinTick,
		MinLiquidity: cfg.Detector.MinLiquidity,
		MinCombined:  cfg.Detector.MinCombined,
	})
	registry := market.NewRegistry(market.Config{
		RefreshInterval:   cfg.Discovery.RefreshInterval,
		PageLimit:         cfg.Discovery.PageLimit,
		Assets:            cfg.Discovery.Assets,
		Timeframe:         cfg.Discovery.Timeframe,
		BoundaryMode:      cfg.Discovery.BoundaryMode,
		BoundaryTolerance: cfg.Discovery.BoundaryTolerance,
	}, gammaClient, table, logger.With("component", "registry"))

	// Feed session
	feedSession := feed.New(feed.Config{
		WSURL:              cfg.Feed.WSURL,
		PingInterval:       cfg.Feed.PingInterval,
		StaleTimeout:       cfg.Feed.StaleTimeout,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		BufferSize:         cfg.Feed.BufferSize,
	}, logger.With("component", "feed"))

	// Persistence
	opps := store.New(db, logger.With("component", "store"))
	snapshots := store.NewSnapshotWriter(store.WriterConfig{
		BatchSize:     cfg.Snapshots.BatchSize,
		FlushInterval: cfg.Snapshots.FlushInterval,
		BufferSize:    cfg.Snapshots.BufferSize,
	}, db, logger.With("component", "snapshots"))

	if err := snapshots.Start(ctx); err != nil {
		logger.Error("failed to start snapshot writer", "error", err)
		os.Exit(1)
	}

	mon := monitor.New(monitor.Config{
		RefreshInterval:  cfg.Discovery.RefreshInterval,
		SnapshotInterval: cfg.Snapshots.Interval,
	}, feedSession, registry, table, detector, opps, snapshots, logger.With("component", "monitor"))

	// Status server
	statusServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createStatusHandler(mon, db),
	}
	go func() {
		logger.Info("starting status server", "port", cfg.Status.Port)
		if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("status server error", "error", err)
		}
	}()

	logger.Info("monitor running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Status.Port),
	)

	if err := mon.Run(ctx); err != nil {
		logger.Error("monitor exited with error", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	statusServer.Shutdown(shutdownCtx)
	snapshots.Stop(shutdownCtx)

	logger.Info("monitor stopped")
}

// createStatusHandler serves the read-only status facade.
func createStatusHandler(mon *monitor.Monitor, db interface {
	Ping(ctx context.Context) error
}) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		status := mon.Status()
		health.Components["feed"] = map[string]any{
			"connected": status.Connected,
		}
		health.Components["markets"] = map[string]any{
			"tracked": status.MarketsTracked,
		}
		if !status.Connected {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mon.Status())
	})

	mux.HandleFunc("/spreads", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"spreads": mon.CurrentSpreads(),
		})
	})

	return mux
}
