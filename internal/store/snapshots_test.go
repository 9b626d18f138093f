package store

import (
	"context"
	"testing"
	"time"

	"github.com/kmorrow/spreadwatch/internal/model"
)

func TestSnapshotWriter_Transform(t *testing.T) {
	w := NewSnapshotWriter(DefaultWriterConfig(), nil, nil)

	ts := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	snap := model.SpreadSnapshot{
		Timestamp:      ts,
		MarketID:       "cond-1",
		Asset:          "BTC",
		Timeframe:      "15m",
		UpAsk:          0.47,
		DownAsk:        0.50,
		Combined:       0.97,
		Spread:         0.03,
		SpreadPct:      3.09,
		UpLiquidity:    100,
		DownLiquidity:  80,
		HasOpportunity: true,
	}

	row := w.transform(snap)

	if !row.Ts.Equal(ts) {
		t.Errorf("Ts = %v, want %v", row.Ts, ts)
	}
	if row.MarketID != "cond-1" {
		t.Errorf("MarketID = %s, want cond-1", row.MarketID)
	}
	if row.Asset != "BTC" || row.Timeframe != "15m" {
		t.Errorf("tags = %s/%s, want BTC/15m", row.Asset, row.Timeframe)
	}
	if row.UpAsk != 0.47 || row.DownAsk != 0.50 {
		t.Errorf("asks = %v/%v, want 0.47/0.50", row.UpAsk, row.DownAsk)
	}
	if row.Combined != 0.97 || row.Spread != 0.03 {
		t.Errorf("combined/spread = %v/%v, want 0.97/0.03", row.Combined, row.Spread)
	}
	if row.UpLiquidity != 100 || row.DownLiquidity != 80 {
		t.Errorf("liquidity = %v/%v, want 100/80", row.UpLiquidity, row.DownLiquidity)
	}
	if !row.HasOpportunity {
		t.Error("HasOpportunity should carry through")
	}
}

func TestSnapshotWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}
	w := NewSnapshotWriter(cfg, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSnapshotWriter_HandleSnapshot_AddsToBatch(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	w := NewSnapshotWriter(cfg, nil, nil)

	w.handleSnapshot(model.SpreadSnapshot{
		MarketID:  "cond-1",
		Asset:     "BTC",
		Timestamp: time.Now(),
	})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestSnapshotWriter_EnqueueDropsWhenFull(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    1,
	}
	w := NewSnapshotWriter(cfg, nil, nil)

	// Writer not started: first fills the buffer, second is dropped
	w.Enqueue(model.SpreadSnapshot{MarketID: "a"})
	w.Enqueue(model.SpreadSnapshot{MarketID: "b"})

	stats := w.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestSnapshotWriter_Stats(t *testing.T) {
	w := NewSnapshotWriter(DefaultWriterConfig(), nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 || stats.Errors != 0 || stats.Flushes != 0 {
		t.Errorf("initial metrics = %+v, want zeroes", stats)
	}
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()

	if cfg.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200", cfg.BatchSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
}
