package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmorrow/spreadwatch/internal/model"
)

// WriterConfig holds snapshot writer batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     200,
		FlushInterval: 5 * time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics tracks snapshot writer activity.
type WriterMetrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// snapshotRow is the flattened insert shape.
type snapshotRow struct {
	Ts             time.Time
	MarketID       string
	Asset          string
	Timeframe      string
	UpAsk          float64
	DownAsk        float64
	Combined       float64
	Spread         float64
	SpreadPct      float64
	UpLiquidity    float64
	DownLiquidity  float64
	HasOpportunity bool
}

// SnapshotWriter batches spread snapshots into PostgreSQL.
type SnapshotWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input chan model.SpreadSnapshot
	db    *pgxpool.Pool

	// Batching
	batch       []snapshotRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewSnapshotWriter creates a new SnapshotWriter.
func NewSnapshotWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWriterConfig().BufferSize
	}
	return &SnapshotWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.SpreadSnapshot, cfg.BufferSize),
		batch:  make([]snapshotRow, 0, cfg.BatchSize),
	}
}

// Enqueue hands a snapshot to the writer without blocking. Over
// capacity the snapshot is dropped and counted.
func (w *SnapshotWriter) Enqueue(snap model.SpreadSnapshot) {
	select {
	case w.input <- snap:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("snapshot buffer full, dropping snapshot", "market_id", snap.MarketID)
	}
}

// Start begins consuming snapshots and writing to the database.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping snapshot writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *SnapshotWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input channel and accumulates batches.
func (w *SnapshotWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Drain what's already queued
			for {
				select {
				case snap := <-w.input:
					w.handleSnapshot(snap)
				default:
					return
				}
			}

		case snap := <-w.input:
			w.handleSnapshot(snap)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleSnapshot transforms and adds a snapshot to the batch.
func (w *SnapshotWriter) handleSnapshot(snap model.SpreadSnapshot) {
	row := w.transform(snap)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a snapshot to its insert row.
func (w *SnapshotWriter) transform(snap model.SpreadSnapshot) snapshotRow {
	return snapshotRow{
		Ts:             snap.Timestamp,
		MarketID:       snap.MarketID,
		Asset:          snap.Asset,
		Timeframe:      snap.Timeframe,
		UpAsk:          snap.UpAsk,
		DownAsk:        snap.DownAsk,
		Combined:       snap.Combined,
		Spread:         snap.Spread,
		SpreadPct:      snap.SpreadPct,
		UpLiquidity:    snap.UpLiquidity,
		DownLiquidity:  snap.DownLiquidity,
		HasOpportunity: snap.HasOpportunity,
	}
}

// flush writes the current batch to the database.
func (w *SnapshotWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]snapshotRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(batch); err != nil {
		w.logger.Error("snapshot batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed snapshots",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *SnapshotWriter) batchInsert(rows []snapshotRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO spread_snapshots (
				ts, market_id, asset, timeframe,
				up_ask, down_ask, combined, spread, spread_pct,
				up_liquidity, down_liquidity, has_opportunity
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, r.Ts, r.MarketID, r.Asset, r.Timeframe,
			r.UpAsk, r.DownAsk, r.Combined, r.Spread, r.SpreadPct,
			r.UpLiquidity, r.DownLiquidity, r.HasOpportunity)
	}

	ctx := w.ctx
	if ctx == nil || ctx.Err() != nil {
		// Final flush after Stop still needs a live context
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
