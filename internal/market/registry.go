package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kmorrow/spreadwatch/internal/gamma"
	"github.com/kmorrow/spreadwatch/internal/model"
)

// Config holds Market Registry configuration.
type Config struct {
	RefreshInterval time.Duration
	PageLimit       int

	Assets    []string // tracked asset tags, matched against event slugs
	Timeframe string   // timeframe tag, e.g. "15m"

	// Boundary mode admits only markets resolving at the next
	// synchronized boundary, rotating the tracked set each cycle.
	BoundaryMode      bool
	BoundaryTolerance time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:   60 * time.Second,
		PageLimit:         500,
		Assets:            []string{"BTC", "ETH", "XRP", "SOL"},
		Timeframe:         "15m",
		BoundaryMode:      false,
		BoundaryTolerance: 30 * time.Second,
	}
}

// EventSource is the discovery endpoint the registry refreshes from.
type EventSource interface {
	GetEvents(ctx context.Context, limit int) ([]gamma.APIEvent, error)
}

// RefreshResult reports the instrument-level consequences of one
// refresh cycle.
type RefreshResult struct {
	Added   []string // instrument tokens the caller should subscribe
	Removed []string // instrument tokens the caller should unsubscribe
	Events  []Event  // windows force-closed by market removal
}

// Registry keeps the Table in sync with Gamma discovery.
type Registry struct {
	cfg    Config
	source EventSource
	table  *Table
	logger *slog.Logger

	slugTag string
}

// NewRegistry creates a Registry over an existing Table.
func NewRegistry(cfg Config, source EventSource, table *Table, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		cfg:     cfg,
		source:  source,
		table:   table,
		logger:  logger,
		slugTag: "-" + strings.ToLower(cfg.Timeframe) + "-",
	}
}

// Refresh queries discovery, filters to qualifying markets, and diffs
// the result against the Table. On a discovery error the tracked set is
// left untouched and the error returned; the cycle is simply skipped.
func (r *Registry) Refresh(ctx context.Context, now time.Time) (RefreshResult, error) {
	events, err := r.source.GetEvents(ctx, r.cfg.PageLimit)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh markets: %w", err)
	}

	desired := r.filterEvents(events, now)

	var result RefreshResult

	for id, m := range desired {
		if r.table.Has(id) {
			continue
		}
		if r.table.Add(m) {
			result.Added = append(result.Added, m.UpToken, m.DownToken)
			r.logger.Info("market added",
				"market_id", m.MarketID,
				"asset", m.Asset,
				"slug", m.Slug,
			)
		}
	}

	for _, id := range r.table.MarketIDs() {
		if _, ok := desired[id]; ok {
			continue
		}
		closed, tokens := r.table.Remove(id, now)
		result.Events = append(result.Events, closed...)
		result.Removed = append(result.Removed, tokens...)
		r.logger.Info("market removed", "market_id", id, "forced_closes", len(closed))
	}

	r.logger.Debug("refresh complete",
		"tracked", r.table.Len(),
		"added", len(result.Added)/2,
		"removed", len(result.Removed)/2,
	)

	return result, nil
}

// filterEvents reduces a discovery page to the qualifying market set,
// keyed by market ID.
func (r *Registry) filterEvents(events []gamma.APIEvent, now time.Time) map[string]model.Market {
	var boundary time.Time
	if r.cfg.BoundaryMode {
		boundary = r.nextBoundary(now)
	}

	desired := make(map[string]model.Market)

	for _, ev := range events {
		if ev.Closed {
			continue
		}
		slug := strings.ToLower(ev.Slug)
		if !strings.Contains(slug, r.slugTag) {
			continue
		}
		asset := r.extractAsset(slug)
		if asset == "" {
			continue
		}

		for i := range ev.Markets {
			m := &ev.Markets[i]
			if m.Closed || !m.AcceptingOrders {
				continue
			}
			if m.ConditionID == "" {
				continue
			}
			if _, dup := desired[m.ConditionID]; dup {
				continue
			}

			up, down, ok := m.TokenPair()
			if !ok {
				continue
			}

			end := m.EndTime()
			if r.cfg.BoundaryMode && !r.atBoundary(end, boundary) {
				continue
			}

			desired[m.ConditionID] = model.Market{
				MarketID:  m.ConditionID,
				Asset:     asset,
				Timeframe: r.cfg.Timeframe,
				Question:  m.Question,
				Slug:      slug,
				UpToken:   up,
				DownToken: down,
				EndDate:   end,
			}
		}
	}

	return desired
}

// extractAsset matches the first tracked asset tag found in the slug.
func (r *Registry) extractAsset(slug string) string {
	for _, a := range r.cfg.Assets {
		if strings.Contains(slug, strings.ToLower(a)) {
			return a
		}
	}
	return ""
}

// nextBoundary computes the nearest upcoming synchronized resolution
// time, the next whole multiple of the timeframe.
func (r *Registry) nextBoundary(now time.Time) time.Time {
	d, err := time.ParseDuration(r.cfg.Timeframe)
	if err != nil || d <= 0 {
		r.logger.Warn("unparseable timeframe, boundary filter disabled", "timeframe", r.cfg.Timeframe)
		return time.Time{}
	}
	return now.UTC().Truncate(d).Add(d)
}

// atBoundary reports whether end falls on the boundary within the
// configured tolerance.
func (r *Registry) atBoundary(end, boundary time.Time) bool {
	if boundary.IsZero() {
		return true
	}
	if end.IsZero() {
		return false
	}
	diff := end.Sub(boundary)
	if diff < 0 {
		diff = -diff
	}
	tol := r.cfg.BoundaryTolerance
	if tol <= 0 {
		tol = DefaultConfig().BoundaryTolerance
	}
	return diff <= tol
}
