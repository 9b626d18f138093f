package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kmorrow/spreadwatch/internal/market"
	"github.com/kmorrow/spreadwatch/internal/model"
)

// fakeFeed drives the monitor's update loop from tests.
type fakeFeed struct {
	updates chan model.BookUpdate

	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	messages     int64
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{updates: make(chan model.BookUpdate, 100)}
}

func (f *fakeFeed) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) Updates() <-chan model.BookUpdate { return f.updates }

func (f *fakeFeed) Subscribe(ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, ids...)
	return nil
}

func (f *fakeFeed) Unsubscribe(ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, ids...)
	return nil
}

func (f *fakeFeed) IsConnected() bool       { return true }
func (f *fakeFeed) MessagesReceived() int64 { return f.messages }

func (f *fakeFeed) subscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

// fakeRegistry returns a canned refresh result.
type fakeRegistry struct {
	mu     sync.Mutex
	result market.RefreshResult
	err    error
	calls  int
}

func (r *fakeRegistry) Refresh(ctx context.Context, now time.Time) (market.RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return market.RefreshResult{}, r.err
	}
	res := r.result
	r.result = market.RefreshResult{} // one-shot
	return res, nil
}

// fakeStore records persistence calls.
type fakeStore struct {
	mu         sync.Mutex
	openID     uuid.UUID
	opened     []model.Opportunity
	closed     []model.OpportunityClose
	closedByID int
}

func (s *fakeStore) OpenOpportunity(ctx context.Context, opp model.Opportunity) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, opp)
	return s.openID, nil
}

func (s *fakeStore) CloseOpportunity(ctx context.Context, rec model.OpportunityClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, rec)
	s.closedByID++
	return nil
}

func (s *fakeStore) CloseLatestOpen(ctx context.Context, rec model.OpportunityClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, rec)
	return nil
}

func (s *fakeStore) openedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opened)
}

func (s *fakeStore) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closed)
}

// fakeSink collects snapshots.
type fakeSink struct {
	mu    sync.Mutex
	snaps []model.SpreadSnapshot
}

func (s *fakeSink) Enqueue(snap model.SpreadSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testMonitor(t *testing.T, cfg Config, feed *fakeFeed, reg *fakeRegistry, st *fakeStore, sink *fakeSink) (*Monitor, *market.Table) {
	t.Helper()
	table := market.NewTable()
	det := market.NewDetector(market.DefaultDetectorConfig())
	return New(cfg, feed, reg, table, det, st, sink, nil), table
}

func TestMonitor_OpportunityLifecycle(t *testing.T) {
	feed := newFakeFeed()
	reg := &fakeRegistry{}
	st := &fakeStore{openID: uuid.New()}
	sink := &fakeSink{}

	cfg := Config{RefreshInterval: time.Hour, SnapshotInterval: time.Hour}
	m, table := testMonitor(t, cfg, feed, reg, st, sink)

	table.Add(model.Market{
		MarketID: "cond-1", Asset: "BTC", Timeframe: "15m",
		UpToken: "tok-up", DownToken: "tok-down",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	now := time.Now()
	feed.updates <- model.BookUpdate{InstrumentID: "tok-up", BestAsk: 0.47, AskLiquidity: 100, HasLiquidity: true, Timestamp: now}
	feed.updates <- model.BookUpdate{InstrumentID: "tok-down", BestAsk: 0.50, AskLiquidity: 80, HasLiquidity: true, Timestamp: now}

	waitFor(t, func() bool { return st.openedCount() == 1 })

	st.mu.Lock()
	opened := st.opened[0]
	st.mu.Unlock()
	if opened.MarketID != "cond-1" || opened.Combined != 0.97 {
		t.Errorf("opened = %+v, want cond-1 at 0.97", opened)
	}

	if got := m.Status().OpportunitiesDetected; got != 1 {
		t.Errorf("OpportunitiesDetected = %d, want 1", got)
	}
	if got := m.Status().ActiveOpportunities; got != 1 {
		t.Errorf("ActiveOpportunities = %d, want 1", got)
	}

	// Spread collapses, window closes
	feed.updates <- model.BookUpdate{InstrumentID: "tok-up", BestAsk: 0.52, HasLiquidity: false, Timestamp: now.Add(3 * time.Second)}

	waitFor(t, func() bool { return st.closedCount() == 1 })

	st.mu.Lock()
	closed := st.closed[0]
	byID := st.closedByID
	st.mu.Unlock()

	if closed.ID != st.openID {
		t.Errorf("close ID = %v, want the ID returned at open", closed.ID)
	}
	if byID != 1 {
		t.Error("close should go through CloseOpportunity when the row ID is known")
	}
	if closed.DurationSeconds < 2.9 || closed.DurationSeconds > 3.1 {
		t.Errorf("DurationSeconds = %v, want ~3", closed.DurationSeconds)
	}
	if m.Status().ActiveOpportunities != 0 {
		t.Error("ActiveOpportunities should be 0 after close")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on cancellation", err)
	}
}

func TestMonitor_InitialRefreshSubscribes(t *testing.T) {
	feed := newFakeFeed()
	reg := &fakeRegistry{result: market.RefreshResult{
		Added: []string{"tok-up", "tok-down"},
	}}
	st := &fakeStore{openID: uuid.New()}
	sink := &fakeSink{}

	cfg := Config{RefreshInterval: time.Hour, SnapshotInterval: time.Hour}
	m, _ := testMonitor(t, cfg, feed, reg, st, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, func() bool { return feed.subscribedCount() == 2 })

	if got := m.Status().PollsCompleted; got != 1 {
		t.Errorf("PollsCompleted = %d, want 1", got)
	}

	cancel()
	<-done
}

func TestMonitor_RefreshErrorKeepsRunning(t *testing.T) {
	feed := newFakeFeed()
	reg := &fakeRegistry{err: errors.New("gamma down")}
	st := &fakeStore{}
	sink := &fakeSink{}

	cfg := Config{RefreshInterval: 10 * time.Millisecond, SnapshotInterval: time.Hour}
	m, _ := testMonitor(t, cfg, feed, reg, st, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return reg.calls >= 3
	})

	if got := m.Status().PollsCompleted; got != 0 {
		t.Errorf("PollsCompleted = %d, want 0 after failed cycles", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestMonitor_SnapshotLoop(t *testing.T) {
	feed := newFakeFeed()
	reg := &fakeRegistry{}
	st := &fakeStore{}
	sink := &fakeSink{}

	cfg := Config{RefreshInterval: time.Hour, SnapshotInterval: 15 * time.Millisecond}
	m, table := testMonitor(t, cfg, feed, reg, st, sink)

	table.Add(model.Market{
		MarketID: "cond-1", Asset: "ETH", Timeframe: "15m",
		UpToken: "tok-up", DownToken: "tok-down",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// No valid prices yet: snapshots must stay empty
	time.Sleep(50 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("got %d snapshots before any prices, want 0", sink.count())
	}

	now := time.Now()
	feed.updates <- model.BookUpdate{InstrumentID: "tok-up", BestAsk: 0.48, AskLiquidity: 30, HasLiquidity: true, Timestamp: now}
	feed.updates <- model.BookUpdate{InstrumentID: "tok-down", BestAsk: 0.53, AskLiquidity: 20, HasLiquidity: true, Timestamp: now}

	waitFor(t, func() bool { return sink.count() >= 2 })

	sink.mu.Lock()
	snap := sink.snaps[0]
	sink.mu.Unlock()
	if snap.MarketID != "cond-1" || snap.Asset != "ETH" {
		t.Errorf("snapshot = %+v, want cond-1/ETH", snap)
	}
	if snap.HasOpportunity {
		t.Error("combined 1.01 should not flag an opportunity")
	}

	if m.Status().SnapshotsRecorded < 2 {
		t.Errorf("SnapshotsRecorded = %d, want >= 2", m.Status().SnapshotsRecorded)
	}

	cancel()
	<-done
}

func TestMonitor_StatusView(t *testing.T) {
	feed := newFakeFeed()
	feed.messages = 42
	reg := &fakeRegistry{}
	st := &fakeStore{}
	sink := &fakeSink{}

	cfg := DefaultConfig()
	m, table := testMonitor(t, cfg, feed, reg, st, sink)

	table.Add(model.Market{MarketID: "cond-1", Asset: "BTC", Timeframe: "15m", UpToken: "u", DownToken: "d"})

	status := m.Status()
	if status.Running {
		t.Error("Running should be false before Run")
	}
	if !status.Connected {
		t.Error("Connected should reflect the feed")
	}
	if status.MarketsTracked != 1 {
		t.Errorf("MarketsTracked = %d, want 1", status.MarketsTracked)
	}
	if status.MessagesReceived != 42 {
		t.Errorf("MessagesReceived = %d, want 42", status.MessagesReceived)
	}

	if spreads := m.CurrentSpreads(); len(spreads) != 0 {
		t.Errorf("CurrentSpreads = %d entries want 0 without prices", len(spreads))
	}
}
