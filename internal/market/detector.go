package market

import (
	"time"

	"github.com/google/uuid"

	"github.com/kmorrow/spreadwatch/internal/model"
)

// EventType identifies an opportunity window transition.
type EventType string

const (
	EventOpened EventType = "opened"
	EventClosed EventType = "closed"
)

// Event is one window transition. Exactly one of Opened and Closed is
// set, matching Type.
type Event struct {
	Type   EventType
	Opened *model.Opportunity
	Closed *model.OpportunityClose
}

// DetectorConfig holds the thresholds for the validity gate and the
// opportunity predicate.
type DetectorConfig struct {
	MinSpreadPct float64 // noise floor, percent of combined cost
	PriceFloor   float64 // asks at or below are placeholder ticks
	PriceCeil    float64 // asks at or above are placeholder ticks
	MinTick      float64 // exchange minimum tradable increment
	MinLiquidity float64 // required depth when both asks sit at min tick
	MinCombined  float64 // combined below this is a stale or fake print
}

// DefaultDetectorConfig returns the thresholds tuned for Polymarket
// up/down markets.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinSpreadPct: 0.5,
		PriceFloor:   0.01,
		PriceCeil:    0.99,
		MinTick:      0.02,
		MinLiquidity: 10.0,
		MinCombined:  0.10,
	}
}

// Detector is pure decision logic. It mutates window-tracking fields on
// the State it is handed; the Table calls it under its lock.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// ValidPrices reports whether both sides carry tradable quotes. Asks at
// the price floor or ceiling are placeholder ticks. Both asks resting
// at the minimum tick is only believable with real depth behind each.
// An implausibly low combined cost is treated as a stale print.
func (d *Detector) ValidPrices(s *State) bool {
	if s.UpAsk == nil || s.DownAsk == nil {
		return false
	}
	up, down := *s.UpAsk, *s.DownAsk

	if up <= d.cfg.PriceFloor || down <= d.cfg.PriceFloor {
		return false
	}
	if up >= d.cfg.PriceCeil || down >= d.cfg.PriceCeil {
		return false
	}

	if d.cfg.MinTick > 0 && up == d.cfg.MinTick && down == d.cfg.MinTick {
		if s.UpLiquidity < d.cfg.MinLiquidity || s.DownLiquidity < d.cfg.MinLiquidity {
			return false
		}
	}

	if d.cfg.MinCombined > 0 && up+down < d.cfg.MinCombined {
		return false
	}

	return true
}

// Evaluate applies the window transition rules to a market's current
// state and returns the resulting events. The open and close threshold
// is the same in both directions.
func (d *Detector) Evaluate(s *State, now time.Time) []Event {
	if !d.ValidPrices(s) {
		if s.OpenedAt != nil {
			return []Event{closeWindow(s, now)}
		}
		return nil
	}

	combined, _ := s.Combined()
	spread, _ := s.Spread()
	spreadPct, _ := s.SpreadPct()

	if combined < 1.0 && spreadPct >= d.cfg.MinSpreadPct {
		if s.OpenedAt == nil {
			return []Event{openWindow(s, now, combined, spread, spreadPct)}
		}
		if spread > s.BestSpread {
			s.BestSpread = spread
		}
		return nil
	}

	if s.OpenedAt != nil {
		return []Event{closeWindow(s, now)}
	}
	return nil
}

// openWindow starts a window on s and builds the opened event.
func openWindow(s *State, now time.Time, combined, spread, spreadPct float64) Event {
	opened := now
	s.OpenedAt = &opened
	s.OpenID = uuid.Nil
	s.BestSpread = spread

	return Event{
		Type: EventOpened,
		Opened: &model.Opportunity{
			MarketID:      s.MarketID,
			Asset:         s.Asset,
			DetectedAt:    now,
			UpAsk:         *s.UpAsk,
			DownAsk:       *s.DownAsk,
			Combined:      combined,
			Spread:        spread,
			SpreadPct:     spreadPct,
			UpLiquidity:   s.UpLiquidity,
			DownLiquidity: s.DownLiquidity,
			MaxPosition:   s.MaxPosition(),
		},
	}
}

// closeWindow ends the open window on s and builds the closed event.
func closeWindow(s *State, now time.Time) Event {
	duration := now.Sub(*s.OpenedAt).Seconds()
	best := s.BestSpread

	bestPct := 0.0
	if best < 1 {
		bestPct = best / (1 - best) * 100
	}

	ev := Event{
		Type: EventClosed,
		Closed: &model.OpportunityClose{
			ID:              s.OpenID,
			MarketID:        s.MarketID,
			Asset:           s.Asset,
			ResolvedAt:      now,
			DurationSeconds: duration,
			BestSpread:      best,
			BestSpreadPct:   bestPct,
		},
	}

	s.OpenedAt = nil
	s.OpenID = uuid.Nil
	s.BestSpread = 0

	return ev
}
