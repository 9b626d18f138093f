package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmorrow/spreadwatch/internal/model"
)

// ErrNoOpenOpportunity is returned when a close has no unresolved row
// to land on.
var ErrNoOpenOpportunity = errors.New("no open opportunity for market")

// Store writes and reads opportunity rows.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// OpenOpportunity inserts a new opportunity row and returns its ID.
func (s *Store) OpenOpportunity(ctx context.Context, opp model.Opportunity) (uuid.UUID, error) {
	id := opp.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO opportunities (
			id, market_id, asset, detected_at,
			up_ask, down_ask, combined, spread, spread_pct,
			up_liquidity, down_liquidity, max_position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, opp.MarketID, opp.Asset, opp.DetectedAt,
		opp.UpAsk, opp.DownAsk, opp.Combined, opp.Spread, opp.SpreadPct,
		opp.UpLiquidity, opp.DownLiquidity, opp.MaxPosition)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert opportunity: %w", err)
	}

	return id, nil
}

// CloseOpportunity resolves an opportunity row by ID.
func (s *Store) CloseOpportunity(ctx context.Context, rec model.OpportunityClose) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE opportunities
		SET resolved_at = $2,
		    duration_seconds = $3,
		    best_spread = $4,
		    best_spread_pct = $5
		WHERE id = $1 AND resolved_at IS NULL
	`, rec.ID, rec.ResolvedAt, rec.DurationSeconds, rec.BestSpread, rec.BestSpreadPct)
	if err != nil {
		return fmt.Errorf("close opportunity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNoOpenOpportunity
	}
	return nil
}

// CloseLatestOpen resolves the most recent unresolved row for a market.
// Used when the close event carries no row ID, matching the original
// write path where the open insert may have failed or predates a
// restart.
func (s *Store) CloseLatestOpen(ctx context.Context, rec model.OpportunityClose) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE opportunities
		SET resolved_at = $2,
		    duration_seconds = $3,
		    best_spread = $4,
		    best_spread_pct = $5
		WHERE id = (
			SELECT id FROM opportunities
			WHERE market_id = $1 AND resolved_at IS NULL
			ORDER BY detected_at DESC
			LIMIT 1
		)
	`, rec.MarketID, rec.ResolvedAt, rec.DurationSeconds, rec.BestSpread, rec.BestSpreadPct)
	if err != nil {
		return fmt.Errorf("close latest open opportunity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNoOpenOpportunity
	}
	return nil
}

// LatestOpenOpportunity returns the most recent unresolved row for a
// market, or ErrNoOpenOpportunity.
func (s *Store) LatestOpenOpportunity(ctx context.Context, marketID string) (model.Opportunity, error) {
	var opp model.Opportunity
	var resolvedAt *time.Time
	var duration, bestSpread, bestSpreadPct *float64

	err := s.db.QueryRow(ctx, `
		SELECT id, market_id, asset, detected_at, resolved_at, duration_seconds,
		       up_ask, down_ask, combined, spread, spread_pct,
		       up_liquidity, down_liquidity, max_position,
		       best_spread, best_spread_pct
		FROM opportunities
		WHERE market_id = $1 AND resolved_at IS NULL
		ORDER BY detected_at DESC
		LIMIT 1
	`, marketID).Scan(
		&opp.ID, &opp.MarketID, &opp.Asset, &opp.DetectedAt, &resolvedAt, &duration,
		&opp.UpAsk, &opp.DownAsk, &opp.Combined, &opp.Spread, &opp.SpreadPct,
		&opp.UpLiquidity, &opp.DownLiquidity, &opp.MaxPosition,
		&bestSpread, &bestSpreadPct,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Opportunity{}, ErrNoOpenOpportunity
		}
		return model.Opportunity{}, fmt.Errorf("query open opportunity: %w", err)
	}

	opp.ResolvedAt = resolvedAt
	if duration != nil {
		opp.DurationSeconds = *duration
	}
	if bestSpread != nil {
		opp.BestSpread = *bestSpread
	}
	if bestSpreadPct != nil {
		opp.BestSpreadPct = *bestSpreadPct
	}

	return opp, nil
}
