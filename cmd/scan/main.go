// scan performs a one-shot sweep: discover current UP/DOWN markets via
// the Gamma API, pull each token's order book over REST, and print the
// markets ranked by spread.
// Usage: go run ./cmd/scan --config configs/monitor.local.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/kmorrow/spreadwatch/internal/config"
	"github.com/kmorrow/spreadwatch/internal/gamma"
	"github.com/kmorrow/spreadwatch/internal/market"
	"github.com/kmorrow/spreadwatch/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := gamma.NewClient(
		cfg.Discovery.GammaURL,
		cfg.Discovery.ClobURL,
		gamma.WithLogger(logger),
		gamma.WithTimeout(cfg.Discovery.Timeout),
		gamma.WithRateLimit(cfg.Discovery.RatePerSec),
	)

	table := market.NewTable()
	registry := market.NewRegistry(market.Config{
		PageLimit:         cfg.Discovery.PageLimit,
		Assets:            cfg.Discovery.Assets,
		Timeframe:         cfg.Discovery.Timeframe,
		BoundaryMode:      cfg.Discovery.BoundaryMode,
		BoundaryTolerance: cfg.Discovery.BoundaryTolerance,
	}, client, table, logger)

	now := time.Now()
	if _, err := registry.Refresh(ctx, now); err != nil {
		logger.Error("discovery failed", "error", err)
		os.Exit(1)
	}
	if table.Len() == 0 {
		fmt.Println("No qualifying markets found.")
		return
	}

	fmt.Printf("Scanning %d markets (%s %s)...\n",
		table.Len(), cfg.Discovery.Timeframe, now.UTC().Format("15:04:05 UTC"))

	detector := market.NewDetector(market.DetectorConfig{
		MinSpreadPct: cfg.Detector.MinSpreadPct,
		PriceFloor:   cfg.Detector.PriceFloor,
		PriceCeil:    cfg.Detector.PriceCeil,
		MinTick:      cfg.Detector.MinTick,
		MinLiquidity: cfg.Detector.MinLiquidity,
		MinCombined:  cfg.Detector.MinCombined,
	})

	// Feed each token's REST book through the same pipeline the live
	// monitor uses
	fetched := 0
	for _, tokenID := range table.Instruments() {
		book, err := client.GetBook(ctx, tokenID)
		if err != nil {
			logger.Warn("book fetch failed", "token", tokenID, "error", err)
			continue
		}
		if !book.HasAsk {
			continue
		}
		table.Apply(model.BookUpdate{
			InstrumentID: tokenID,
			BestAsk:      book.BestAsk,
			AskLiquidity: book.AskLiquidity,
			HasLiquidity: true,
			Timestamp:    time.Now(),
		}, detector, time.Now())
		fetched++
	}

	entries := table.CurrentSpreads(detector)
	if len(entries) == 0 {
		fmt.Printf("Fetched %d books; no markets with valid two-sided quotes.\n", fetched)
		return
	}

	printSpreads(entries)
}

// printSpreads renders the ranked spread table to stdout.
func printSpreads(entries []model.SpreadEntry) {
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("#", "Asset", "Up Ask", "Down Ask", "Combined", "Spread%", "Max Pos", "Opp")

	for i, e := range entries {
		opp := ""
		if e.HasOpportunity {
			opp = "YES"
		}
		tbl.Append(
			fmt.Sprintf("%d", i+1),
			e.Asset,
			fmt.Sprintf("%.3f", e.UpAsk),
			fmt.Sprintf("%.3f", e.DownAsk),
			fmt.Sprintf("%.3f", e.Combined),
			fmt.Sprintf("%+.2f", e.SpreadPct),
			fmt.Sprintf("%.0f", e.MaxPosition),
			opp,
		)
	}

	tbl.Render()
	fmt.Println("  Spread% > 0 means buying both sides costs less than the $1.00 payout.")
	fmt.Println("  Max Pos = size tradable on both sides, bounded by the thinner book.")
}
