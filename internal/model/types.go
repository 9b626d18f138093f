package model

import (
	"time"

	"github.com/google/uuid"
)

// Market is a tradeable UP/DOWN binary market pair discovered via the
// Gamma events endpoint.
type Market struct {
	MarketID  string    // Condition ID (stable key)
	Asset     string    // "BTC", "ETH", "XRP", "SOL"
	Timeframe string    // e.g. "15m"
	Question  string    // Display question
	Slug      string    // Event slug
	UpToken   string    // CLOB token ID for the UP outcome
	DownToken string    // CLOB token ID for the DOWN outcome
	EndDate   time.Time // Resolution time (zero if not provided)
}

// BookUpdate is the single normalized shape every inbound feed message
// (full book, price change, last trade) is reduced to.
type BookUpdate struct {
	InstrumentID string    // CLOB token ID this update applies to
	BestAsk      float64   // Best (lowest) ask price in dollars
	AskLiquidity float64   // Size available near the best ask
	HasLiquidity bool      // False for last-trade prints, which carry no depth
	Timestamp    time.Time // Local receive time
}

// Opportunity is one open→close arbitrage window for a market.
// Written at detection, updated once at close.
type Opportunity struct {
	ID       uuid.UUID
	MarketID string
	Asset    string

	DetectedAt      time.Time
	ResolvedAt      *time.Time // nil while the window is open
	DurationSeconds float64    // set at close

	// Captured at detection.
	UpAsk         float64
	DownAsk       float64
	Combined      float64
	Spread        float64
	SpreadPct     float64
	UpLiquidity   float64
	DownLiquidity float64
	MaxPosition   float64

	// Captured at close, from the running maximum during the window.
	BestSpread    float64
	BestSpreadPct float64
}

// OpportunityClose records the end of an arbitrage window. ID is
// uuid.Nil when the opening write never succeeded; the store then
// resolves the latest unresolved row for the market instead.
type OpportunityClose struct {
	ID       uuid.UUID
	MarketID string
	Asset    string

	ResolvedAt      time.Time
	DurationSeconds float64
	BestSpread      float64
	BestSpreadPct   float64
}

// SpreadSnapshot is a periodic point-in-time read of a market's quote,
// independent of the event-driven opportunity log.
type SpreadSnapshot struct {
	Timestamp time.Time
	MarketID  string
	Asset     string
	Timeframe string

	UpAsk     float64
	DownAsk   float64
	Combined  float64
	Spread    float64
	SpreadPct float64

	UpLiquidity   float64
	DownLiquidity float64

	HasOpportunity bool
}

// SpreadEntry is one row of the ranked current-spreads view served by the
// status facade.
type SpreadEntry struct {
	MarketID       string  `json:"market_id"`
	Asset          string  `json:"asset"`
	Timeframe      string  `json:"timeframe"`
	UpAsk          float64 `json:"up_ask"`
	DownAsk        float64 `json:"down_ask"`
	Combined       float64 `json:"combined"`
	Spread         float64 `json:"spread"`
	SpreadPct      float64 `json:"spread_pct"`
	MaxPosition    float64 `json:"max_position"`
	HasOpportunity bool    `json:"has_opportunity"`
}
