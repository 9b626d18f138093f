package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kmorrow/spreadwatch/internal/market"
	"github.com/kmorrow/spreadwatch/internal/model"
	"github.com/kmorrow/spreadwatch/internal/store"
)

// Config holds the monitor loop intervals.
type Config struct {
	RefreshInterval  time.Duration
	SnapshotInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:  60 * time.Second,
		SnapshotInterval: 30 * time.Second,
	}
}

// FeedSource is the streaming side the monitor consumes.
type FeedSource interface {
	Run(ctx context.Context) error
	Updates() <-chan model.BookUpdate
	Subscribe(instrumentIDs ...string) error
	Unsubscribe(instrumentIDs ...string) error
	IsConnected() bool
	MessagesReceived() int64
}

// RegistrySource refreshes the tracked market set.
type RegistrySource interface {
	Refresh(ctx context.Context, now time.Time) (market.RefreshResult, error)
}

// OpportunityStore persists window transitions.
type OpportunityStore interface {
	OpenOpportunity(ctx context.Context, opp model.Opportunity) (uuid.UUID, error)
	CloseOpportunity(ctx context.Context, rec model.OpportunityClose) error
	CloseLatestOpen(ctx context.Context, rec model.OpportunityClose) error
}

// SnapshotSink receives periodic spread snapshots.
type SnapshotSink interface {
	Enqueue(snap model.SpreadSnapshot)
}

// Monitor runs the update, refresh, and snapshot loops over a shared
// market table.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	feed      FeedSource
	registry  RegistrySource
	table     *market.Table
	detector  *market.Detector
	store     OpportunityStore
	snapshots SnapshotSink

	running               atomic.Bool
	pollsCompleted        atomic.Int64
	snapshotsRecorded     atomic.Int64
	opportunitiesDetected atomic.Int64
}

// New creates a Monitor.
func New(
	cfg Config,
	feed FeedSource,
	registry RegistrySource,
	table *market.Table,
	detector *market.Detector,
	opps OpportunityStore,
	snapshots SnapshotSink,
	logger *slog.Logger,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		logger:    logger,
		feed:      feed,
		registry:  registry,
		table:     table,
		detector:  detector,
		store:     opps,
		snapshots: snapshots,
	}
}

// Run starts all loops and blocks until ctx is cancelled or a loop
// fails. The initial discovery happens before the loops start so the
// feed has subscriptions from the first connection.
func (m *Monitor) Run(ctx context.Context) error {
	m.running.Store(true)
	defer m.running.Store(false)

	m.refresh(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := m.feed.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error { return m.updateLoop(ctx) })
	g.Go(func() error { return m.refreshLoop(ctx) })
	g.Go(func() error { return m.snapshotLoop(ctx) })

	m.logger.Info("monitor started",
		"refresh_interval", m.cfg.RefreshInterval,
		"snapshot_interval", m.cfg.SnapshotInterval,
	)

	return g.Wait()
}

// updateLoop applies feed updates to the table and persists the
// resulting window transitions.
func (m *Monitor) updateLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-m.feed.Updates():
			if !ok {
				return nil
			}
			now := u.Timestamp
			if now.IsZero() {
				now = time.Now()
			}
			events := m.table.Apply(u, m.detector, now)
			m.handleEvents(ctx, events)
		}
	}
}

// refreshLoop re-runs market discovery on a fixed interval.
func (m *Monitor) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// refresh runs one discovery cycle. A failed cycle keeps the previous
// tracked set.
func (m *Monitor) refresh(ctx context.Context) {
	result, err := m.registry.Refresh(ctx, time.Now())
	if err != nil {
		m.logger.Warn("market refresh failed, keeping current set", "error", err)
		return
	}
	m.pollsCompleted.Add(1)

	m.handleEvents(ctx, result.Events)

	if len(result.Added) > 0 {
		if err := m.feed.Subscribe(result.Added...); err != nil {
			m.logger.Warn("subscribe failed", "count", len(result.Added), "error", err)
		}
	}
	if len(result.Removed) > 0 {
		if err := m.feed.Unsubscribe(result.Removed...); err != nil {
			m.logger.Warn("unsubscribe failed", "count", len(result.Removed), "error", err)
		}
	}
}

// snapshotLoop records a snapshot of every valid-price market on a
// fixed interval.
func (m *Monitor) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snaps := m.table.Snapshots(m.detector, time.Now())
			for _, snap := range snaps {
				m.snapshots.Enqueue(snap)
			}
			m.snapshotsRecorded.Add(int64(len(snaps)))
		}
	}
}

// handleEvents persists window transitions as they happen. Store
// failures are logged; the in-memory window state is never rolled
// back.
func (m *Monitor) handleEvents(ctx context.Context, events []market.Event) {
	for _, ev := range events {
		switch ev.Type {
		case market.EventOpened:
			m.opportunitiesDetected.Add(1)
			opp := ev.Opened

			m.logger.Info("opportunity opened",
				"market_id", opp.MarketID,
				"asset", opp.Asset,
				"up_ask", opp.UpAsk,
				"down_ask", opp.DownAsk,
				"combined", opp.Combined,
				"spread_pct", opp.SpreadPct,
			)

			id, err := m.store.OpenOpportunity(ctx, *opp)
			if err != nil {
				m.logger.Error("failed to persist opportunity open",
					"market_id", opp.MarketID, "error", err)
				continue
			}
			m.table.SetOpenID(opp.MarketID, id)

		case market.EventClosed:
			rec := ev.Closed

			m.logger.Info("opportunity closed",
				"market_id", rec.MarketID,
				"asset", rec.Asset,
				"duration_s", rec.DurationSeconds,
				"best_spread_pct", rec.BestSpreadPct,
			)

			var err error
			if rec.ID != uuid.Nil {
				err = m.store.CloseOpportunity(ctx, *rec)
			} else {
				err = m.store.CloseLatestOpen(ctx, *rec)
			}
			if err != nil {
				if errors.Is(err, store.ErrNoOpenOpportunity) {
					m.logger.Warn("no open row to close", "market_id", rec.MarketID)
					continue
				}
				m.logger.Error("failed to persist opportunity close",
					"market_id", rec.MarketID, "error", err)
			}
		}
	}
}
