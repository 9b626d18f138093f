package market

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmorrow/spreadwatch/internal/model"
)

// State is the live quote and window state for one tracked market.
// Only the Table touches it; callers see copies.
type State struct {
	MarketID  string
	Asset     string
	Timeframe string
	Question  string
	Slug      string
	UpToken   string
	DownToken string
	EndDate   time.Time

	UpAsk   *float64
	DownAsk *float64

	UpLiquidity   float64
	DownLiquidity float64

	UpUpdated   time.Time
	DownUpdated time.Time

	// Open opportunity window, nil when no window is open.
	OpenedAt   *time.Time
	OpenID     uuid.UUID
	BestSpread float64
}

// Combined returns the cost of buying both sides, or ok=false when
// either ask is missing.
func (s *State) Combined() (float64, bool) {
	if s.UpAsk == nil || s.DownAsk == nil {
		return 0, false
	}
	return *s.UpAsk + *s.DownAsk, true
}

// Spread returns 1 - combined. Positive means profit potential.
func (s *State) Spread() (float64, bool) {
	combined, ok := s.Combined()
	if !ok {
		return 0, false
	}
	return 1.0 - combined, true
}

// SpreadPct returns the spread as a percentage of combined cost.
func (s *State) SpreadPct() (float64, bool) {
	combined, ok := s.Combined()
	if !ok || combined <= 0 {
		return 0, false
	}
	return (1.0 - combined) / combined * 100, true
}

// MaxPosition returns the size tradable on both sides, bounded by the
// thinner book.
func (s *State) MaxPosition() float64 {
	if s.UpLiquidity < s.DownLiquidity {
		return s.UpLiquidity
	}
	return s.DownLiquidity
}

// Table owns all market state. Every read and write goes through its
// mutex; no state pointers escape.
type Table struct {
	mu      sync.RWMutex
	markets map[string]*State

	// instrument token -> market ID
	byInstrument map[string]string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		markets:      make(map[string]*State),
		byInstrument: make(map[string]string),
	}
}

// Add inserts a newly discovered market. Existing entries are left
// untouched so live quote state survives a rediscovery.
func (t *Table) Add(m model.Market) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.markets[m.MarketID]; ok {
		return false
	}

	t.markets[m.MarketID] = &State{
		MarketID:  m.MarketID,
		Asset:     m.Asset,
		Timeframe: m.Timeframe,
		Question:  m.Question,
		Slug:      m.Slug,
		UpToken:   m.UpToken,
		DownToken: m.DownToken,
		EndDate:   m.EndDate,
	}
	t.byInstrument[m.UpToken] = m.MarketID
	t.byInstrument[m.DownToken] = m.MarketID
	return true
}

// Remove drops a market and its index entries. An open opportunity
// window is force-closed first; the close event and the market's
// instrument tokens are returned.
func (t *Table) Remove(marketID string, now time.Time) ([]Event, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.markets[marketID]
	if !ok {
		return nil, nil
	}

	var events []Event
	if s.OpenedAt != nil {
		events = append(events, closeWindow(s, now))
	}

	delete(t.byInstrument, s.UpToken)
	delete(t.byInstrument, s.DownToken)
	delete(t.markets, marketID)

	return events, []string{s.UpToken, s.DownToken}
}

// Apply routes a book update to the owning market's side and runs the
// detector on the new state. Updates for unknown instruments are
// dropped.
func (t *Table) Apply(u model.BookUpdate, det *Detector, now time.Time) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	marketID, ok := t.byInstrument[u.InstrumentID]
	if !ok {
		return nil
	}
	s := t.markets[marketID]

	ask := u.BestAsk
	switch u.InstrumentID {
	case s.UpToken:
		s.UpAsk = &ask
		if u.HasLiquidity {
			s.UpLiquidity = u.AskLiquidity
		}
		s.UpUpdated = u.Timestamp
	case s.DownToken:
		s.DownAsk = &ask
		if u.HasLiquidity {
			s.DownLiquidity = u.AskLiquidity
		}
		s.DownUpdated = u.Timestamp
	}

	return det.Evaluate(s, now)
}

// SetOpenID records the persisted row ID for a market's open window.
// A no-op if the window already closed.
func (t *Table) SetOpenID(marketID string, id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.markets[marketID]
	if !ok || s.OpenedAt == nil {
		return
	}
	s.OpenID = id
}

// Has reports whether a market is tracked.
func (t *Table) Has(marketID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.markets[marketID]
	return ok
}

// Len returns the number of tracked markets.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.markets)
}

// MarketIDs returns the tracked market IDs.
func (t *Table) MarketIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.markets))
	for id := range t.markets {
		ids = append(ids, id)
	}
	return ids
}

// Instruments returns all subscribed instrument tokens.
func (t *Table) Instruments() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tokens := make([]string, 0, len(t.byInstrument))
	for tok := range t.byInstrument {
		tokens = append(tokens, tok)
	}
	return tokens
}

// ActiveOpportunities returns the count of markets with an open window.
func (t *Table) ActiveOpportunities() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.markets {
		if s.OpenedAt != nil {
			n++
		}
	}
	return n
}

// Snapshots returns a point-in-time record for every market with valid
// prices.
func (t *Table) Snapshots(det *Detector, now time.Time) []model.SpreadSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snaps := make([]model.SpreadSnapshot, 0, len(t.markets))
	for _, s := range t.markets {
		if !det.ValidPrices(s) {
			continue
		}
		combined, _ := s.Combined()
		spread, _ := s.Spread()
		spreadPct, _ := s.SpreadPct()

		snaps = append(snaps, model.SpreadSnapshot{
			Timestamp:      now,
			MarketID:       s.MarketID,
			Asset:          s.Asset,
			Timeframe:      s.Timeframe,
			UpAsk:          *s.UpAsk,
			DownAsk:        *s.DownAsk,
			Combined:       combined,
			Spread:         spread,
			SpreadPct:      spreadPct,
			UpLiquidity:    s.UpLiquidity,
			DownLiquidity:  s.DownLiquidity,
			HasOpportunity: combined < 1.0,
		})
	}
	return snaps
}

// CurrentSpreads returns valid-price markets ranked by spread, widest
// first.
func (t *Table) CurrentSpreads(det *Detector) []model.SpreadEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]model.SpreadEntry, 0, len(t.markets))
	for _, s := range t.markets {
		if !det.ValidPrices(s) {
			continue
		}
		combined, _ := s.Combined()
		spread, _ := s.Spread()
		spreadPct, _ := s.SpreadPct()

		entries = append(entries, model.SpreadEntry{
			MarketID:       s.MarketID,
			Asset:          s.Asset,
			Timeframe:      s.Timeframe,
			UpAsk:          *s.UpAsk,
			DownAsk:        *s.DownAsk,
			Combined:       combined,
			Spread:         spread,
			SpreadPct:      spreadPct,
			MaxPosition:    s.MaxPosition(),
			HasOpportunity: combined < 1.0,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Spread > entries[j].Spread
	})
	return entries
}
