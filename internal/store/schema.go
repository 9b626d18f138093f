package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the tables the monitor writes to. Idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS opportunities (
	id               UUID PRIMARY KEY,
	market_id        TEXT NOT NULL,
	asset            TEXT NOT NULL,
	detected_at      TIMESTAMPTZ NOT NULL,
	resolved_at      TIMESTAMPTZ,
	duration_seconds DOUBLE PRECISION,
	up_ask           DOUBLE PRECISION NOT NULL,
	down_ask         DOUBLE PRECISION NOT NULL,
	combined         DOUBLE PRECISION NOT NULL,
	spread           DOUBLE PRECISION NOT NULL,
	spread_pct       DOUBLE PRECISION NOT NULL,
	up_liquidity     DOUBLE PRECISION NOT NULL DEFAULT 0,
	down_liquidity   DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_position     DOUBLE PRECISION NOT NULL DEFAULT 0,
	best_spread      DOUBLE PRECISION,
	best_spread_pct  DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_opportunities_market_open
	ON opportunities (market_id, detected_at DESC)
	WHERE resolved_at IS NULL;

CREATE TABLE IF NOT EXISTS spread_snapshots (
	id               BIGSERIAL PRIMARY KEY,
	ts               TIMESTAMPTZ NOT NULL,
	market_id        TEXT NOT NULL,
	asset            TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	up_ask           DOUBLE PRECISION NOT NULL,
	down_ask         DOUBLE PRECISION NOT NULL,
	combined         DOUBLE PRECISION NOT NULL,
	spread           DOUBLE PRECISION NOT NULL,
	spread_pct       DOUBLE PRECISION NOT NULL,
	up_liquidity     DOUBLE PRECISION NOT NULL DEFAULT 0,
	down_liquidity   DOUBLE PRECISION NOT NULL DEFAULT 0,
	has_opportunity  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_spread_snapshots_market_ts
	ON spread_snapshots (market_id, ts DESC);
`

// EnsureSchema applies the monitor's tables and indexes.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
