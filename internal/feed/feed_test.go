package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeClient is an in-memory Client for session tests.
type fakeClient struct {
	mu        sync.Mutex
	sent      [][]byte
	connected bool

	connectErr error
	messages   chan TimestampedMessage
	errs       chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 100),
		errs:     make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errs }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) sentCommands(t *testing.T) []Command {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	cmds := make([]Command, 0, len(f.sent))
	for _, data := range f.sent {
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Fatalf("unmarshal sent command: %v", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func testFeedConfig() Config {
	cfg := DefaultConfig()
	cfg.WSURL = "ws://test.invalid/ws"
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	cfg.BufferSize = 100
	return cfg
}

func TestFeed_SubscribeIdempotent(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())

	if err := f.Subscribe("tok-up", "tok-down"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := f.Subscribe("tok-up", "tok-down"); err != nil {
		t.Fatalf("repeat Subscribe failed: %v", err)
	}
	if err := f.Subscribe("tok-up"); err != nil {
		t.Fatalf("partial repeat Subscribe failed: %v", err)
	}

	if got := f.SubscribedCount(); got != 2 {
		t.Errorf("SubscribedCount = %d, want 2", got)
	}

	if err := f.Unsubscribe("tok-up"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := f.Unsubscribe("tok-up"); err != nil {
		t.Fatalf("repeat Unsubscribe failed: %v", err)
	}

	if got := f.SubscribedCount(); got != 1 {
		t.Errorf("SubscribedCount after Unsubscribe = %d, want 1", got)
	}
}

func TestFeed_SubscribeWhileConnected(t *testing.T) {
	clients := make(chan *fakeClient, 1)

	f := New(testFeedConfig(), slog.Default())
	f.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		c := newFakeClient()
		clients <- c
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	client := <-clients
	waitFor(t, func() bool { return f.IsConnected() })

	if err := f.Subscribe("tok-a"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cmds := client.sentCommands(t)
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1", len(cmds))
	}
	if cmds[0].Type != "subscribe" || cmds[0].Channel != "book" {
		t.Errorf("command = %+v, want subscribe on book", cmds[0])
	}
	if len(cmds[0].AssetIDs) != 1 || cmds[0].AssetIDs[0] != "tok-a" {
		t.Errorf("AssetIDs = %v, want [tok-a]", cmds[0].AssetIDs)
	}

	// Repeated subscribe must not send again
	if err := f.Subscribe("tok-a"); err != nil {
		t.Fatalf("repeat Subscribe failed: %v", err)
	}
	if cmds := client.sentCommands(t); len(cmds) != 1 {
		t.Errorf("sent %d commands after repeat, want 1", len(cmds))
	}

	cancel()
	<-done
}

func TestFeed_ReconnectResubscribesOnce(t *testing.T) {
	clients := make(chan *fakeClient, 2)

	f := New(testFeedConfig(), slog.Default())
	f.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		c := newFakeClient()
		clients <- c
		return c
	}

	if err := f.Subscribe("tok-up", "tok-down"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	first := <-clients
	waitFor(t, func() bool { return len(first.sentCommands(t)) == 1 })

	// Drop the first connection
	first.errs <- ErrStaleConnection

	second := <-clients
	waitFor(t, func() bool { return len(second.sentCommands(t)) == 1 })

	for i, c := range []*fakeClient{first, second} {
		cmds := c.sentCommands(t)
		if len(cmds) != 1 {
			t.Fatalf("client %d sent %d commands, want exactly 1", i, len(cmds))
		}
		if cmds[0].Type != "subscribe" {
			t.Errorf("client %d command type = %s, want subscribe", i, cmds[0].Type)
		}
		if len(cmds[0].AssetIDs) != 2 {
			t.Errorf("client %d subscribed %d ids, want 2", i, len(cmds[0].AssetIDs))
		}
	}

	if got := f.Reconnects(); got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}

	cancel()
	<-done
}

func TestFeed_NormalizeBook(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())
	now := time.Now()

	// Ask ordering intentionally scrambled
	data := []byte(`{
		"event_type": "book",
		"asset_id": "tok-up",
		"asks": [
			{"price": "0.52", "size": "40"},
			{"price": "0.47", "size": "100"},
			{"price": "0.60", "size": "500"},
			{"price": "0.49", "size": "25"}
		],
		"bids": [{"price": "0.44", "size": "10"}]
	}`)

	update, ok := f.normalizeBook(data, now)
	if !ok {
		t.Fatal("expected normalizeBook to produce an update")
	}
	if update.InstrumentID != "tok-up" {
		t.Errorf("InstrumentID = %s, want tok-up", update.InstrumentID)
	}
	if update.BestAsk != 0.47 {
		t.Errorf("BestAsk = %v, want 0.47", update.BestAsk)
	}
	// Top three asks by price: 100 + 25 + 40
	if update.AskLiquidity != 165 {
		t.Errorf("AskLiquidity = %v, want 165", update.AskLiquidity)
	}
	if !update.HasLiquidity {
		t.Error("expected HasLiquidity true for book message")
	}
	if !update.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", update.Timestamp, now)
	}
}

func TestFeed_NormalizeBookNoAsks(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())

	data := []byte(`{"event_type":"book","asset_id":"tok-up","asks":[],"bids":[{"price":"0.44","size":"10"}]}`)
	if _, ok := f.normalizeBook(data, time.Now()); ok {
		t.Error("expected empty-ask book to be dropped")
	}
}

func TestFeed_NormalizePriceChange(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())

	sell := []byte(`{"event_type":"price_change","asset_id":"tok-down","side":"SELL","price":"0.50","size":"80"}`)
	update, ok := f.normalizePriceChange(sell, time.Now())
	if !ok {
		t.Fatal("expected SELL price_change to produce an update")
	}
	if update.BestAsk != 0.50 {
		t.Errorf("BestAsk = %v, want 0.50", update.BestAsk)
	}
	if update.AskLiquidity != 80 {
		t.Errorf("AskLiquidity = %v, want 80", update.AskLiquidity)
	}
	if !update.HasLiquidity {
		t.Error("expected HasLiquidity true for SELL price_change")
	}

	buy := []byte(`{"event_type":"price_change","asset_id":"tok-down","side":"BUY","price":"0.45","size":"80"}`)
	if _, ok := f.normalizePriceChange(buy, time.Now()); ok {
		t.Error("expected BUY price_change to be dropped")
	}
}

func TestFeed_NormalizeLastTrade(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())

	data := []byte(`{"event_type":"last_trade_price","asset_id":"tok-up","price":"0.48","size":"12"}`)
	update, ok := f.normalizeLastTrade(data, time.Now())
	if !ok {
		t.Fatal("expected last_trade_price to produce an update")
	}
	if update.BestAsk != 0.48 {
		t.Errorf("BestAsk = %v, want 0.48", update.BestAsk)
	}
	if update.HasLiquidity {
		t.Error("expected HasLiquidity false for last_trade_price")
	}
}

func TestFeed_HandleMessageBatch(t *testing.T) {
	f := New(testFeedConfig(), slog.Default())

	batch := []byte(`[
		{"event_type":"book","asset_id":"a","asks":[{"price":"0.40","size":"10"}],"bids":[]},
		{"event_type":"unknown_ack"},
		{"event_type":"book","asset_id":"b","asks":[{"price":"0.55","size":"20"}],"bids":[]}
	]`)

	f.handleMessage(TimestampedMessage{Data: batch, ReceivedAt: time.Now()})

	if got := f.MessagesReceived(); got != 1 {
		t.Errorf("MessagesReceived = %d, want 1", got)
	}

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case u := <-f.Updates():
			got = append(got, u.InstrumentID)
		default:
			t.Fatalf("expected 2 updates, got %d", len(got))
		}
	}
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("update order = %v, want [a b]", got)
	}

	select {
	case u := <-f.Updates():
		t.Errorf("unexpected extra update: %+v", u)
	default:
	}
}

// waitFor polls cond until it holds or the deadline passes.
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
