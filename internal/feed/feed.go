package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kmorrow/spreadwatch/internal/model"
)

const bookChannel = "book"

// Feed maintains a subscribed WebSocket session across reconnects.
// Subscriptions are recorded even while disconnected and replayed once
// after every successful (re)connection.
type Feed struct {
	cfg    Config
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(cfg ClientConfig, logger *slog.Logger) Client

	updates chan model.BookUpdate

	// Subscription set and current connection
	mu      sync.RWMutex
	subs    map[string]struct{}
	current Client

	// Counters
	messagesReceived atomic.Int64
	reconnects       atomic.Int64
	connected        atomic.Bool
}

// New creates a Feed. Run must be called for it to connect.
func New(cfg Config, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &Feed{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		updates:   make(chan model.BookUpdate, cfg.BufferSize),
		subs:      make(map[string]struct{}),
	}
}

// Updates returns the channel of normalized book updates.
func (f *Feed) Updates() <-chan model.BookUpdate {
	return f.updates
}

// IsConnected reports whether the session currently has a live connection.
func (f *Feed) IsConnected() bool {
	return f.connected.Load()
}

// MessagesReceived returns the total count of data messages processed.
func (f *Feed) MessagesReceived() int64 {
	return f.messagesReceived.Load()
}

// Reconnects returns the number of reconnections performed.
func (f *Feed) Reconnects() int64 {
	return f.reconnects.Load()
}

// SubscribedCount returns the number of instruments in the subscription set.
func (f *Feed) SubscribedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Subscribe adds instrument IDs to the subscription set. IDs already
// present are skipped, so repeated calls never duplicate a subscription.
// If a connection is live the new IDs are subscribed immediately;
// otherwise they are picked up on the next (re)connection.
func (f *Feed) Subscribe(instrumentIDs ...string) error {
	f.mu.Lock()
	added := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if id == "" {
			continue
		}
		if _, ok := f.subs[id]; ok {
			continue
		}
		f.subs[id] = struct{}{}
		added = append(added, id)
	}
	client := f.current
	f.mu.Unlock()

	if len(added) == 0 {
		return nil
	}

	f.logger.Debug("subscriptions added", "count", len(added))

	if client == nil || !client.IsConnected() {
		// Deferred until the session connects
		return nil
	}
	return f.sendCommand(client, "subscribe", added)
}

// Unsubscribe removes instrument IDs from the subscription set. Unknown
// IDs are ignored.
func (f *Feed) Unsubscribe(instrumentIDs ...string) error {
	f.mu.Lock()
	removed := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if _, ok := f.subs[id]; !ok {
			continue
		}
		delete(f.subs, id)
		removed = append(removed, id)
	}
	client := f.current
	f.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}

	f.logger.Debug("subscriptions removed", "count", len(removed))

	if client == nil || !client.IsConnected() {
		return nil
	}
	return f.sendCommand(client, "unsubscribe", removed)
}

// Run connects and processes messages until ctx is cancelled. Lost
// connections are retried with exponential backoff; the full
// subscription set is replayed exactly once per successful connection.
func (f *Feed) Run(ctx context.Context) error {
	baseWait := f.cfg.ReconnectBaseDelay
	if baseWait <= 0 {
		baseWait = DefaultConfig().ReconnectBaseDelay
	}
	maxWait := f.cfg.ReconnectMaxDelay
	if maxWait <= 0 {
		maxWait = DefaultConfig().ReconnectMaxDelay
	}
	wait := baseWait

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		client := f.newClient(ClientConfig{
			URL:          f.cfg.WSURL,
			PingInterval: f.cfg.PingInterval,
			StaleTimeout: f.cfg.StaleTimeout,
			WriteTimeout: f.cfg.WriteTimeout,
			BufferSize:   f.cfg.BufferSize,
		}, f.logger)

		if err := client.Connect(ctx); err != nil {
			f.logger.Warn("connect failed", "url", f.cfg.WSURL, "error", err, "retry_in", wait)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		// Successful connection resets the backoff
		wait = baseWait
		if !first {
			f.reconnects.Add(1)
		}
		first = false

		f.mu.Lock()
		f.current = client
		f.mu.Unlock()
		f.connected.Store(true)

		f.resubscribe(client)

		err := f.session(ctx, client)

		f.connected.Store(false)
		f.mu.Lock()
		f.current = nil
		f.mu.Unlock()
		client.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("connection lost, reconnecting", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// resubscribe replays the full subscription set on a fresh connection.
func (f *Feed) resubscribe(client Client) {
	f.mu.RLock()
	ids := make([]string, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	f.mu.RUnlock()

	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)

	if err := f.sendCommand(client, "subscribe", ids); err != nil {
		f.logger.Warn("resubscribe failed", "count", len(ids), "error", err)
		return
	}
	f.logger.Info("resubscribed", "count", len(ids))
}

// sendCommand marshals and sends a subscribe/unsubscribe command.
func (f *Feed) sendCommand(client Client, cmdType string, ids []string) error {
	cmd := Command{
		Type:     cmdType,
		Channel:  bookChannel,
		AssetIDs: ids,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return client.Send(data)
}

// session consumes one connection until it errors or ctx is cancelled.
func (f *Feed) session(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-client.Errors():
			return err

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			f.handleMessage(msg)
		}
	}
}

// handleMessage normalizes one raw message into zero or more BookUpdates.
// The feed delivers both single objects and JSON arrays of objects.
func (f *Feed) handleMessage(msg TimestampedMessage) {
	data := trimLeadingSpace(msg.Data)
	if len(data) == 0 {
		return
	}

	f.messagesReceived.Add(1)

	if data[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			f.logger.Debug("unparseable message batch", "error", err)
			return
		}
		for _, raw := range batch {
			f.handleEvent(raw, msg.ReceivedAt)
		}
		return
	}

	f.handleEvent(data, msg.ReceivedAt)
}

// handleEvent dispatches one event object by its event_type.
func (f *Feed) handleEvent(data []byte, receivedAt time.Time) {
	var env struct {
		EventType string `json:"event_type"`
		MsgType   string `json:"msg_type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug("unparseable event", "error", err)
		return
	}
	kind := env.EventType
	if kind == "" {
		kind = env.MsgType
	}

	var update model.BookUpdate
	var ok bool

	switch kind {
	case "book":
		update, ok = f.normalizeBook(data, receivedAt)
	case "price_change":
		update, ok = f.normalizePriceChange(data, receivedAt)
	case "last_trade_price":
		update, ok = f.normalizeLastTrade(data, receivedAt)
	default:
		// Acks and unknown event kinds carry no book data
		return
	}
	if !ok {
		return
	}

	select {
	case f.updates <- update:
	default:
		f.logger.Warn("update buffer full, dropping update",
			"instrument", update.InstrumentID,
		)
	}
}

// normalizeBook reduces a full book message to the lowest ask and the
// liquidity across the three tightest ask levels.
func (f *Feed) normalizeBook(data []byte, receivedAt time.Time) (model.BookUpdate, bool) {
	var msg bookMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable book message", "error", err)
		return model.BookUpdate{}, false
	}
	if msg.AssetID == "" || len(msg.Asks) == 0 {
		return model.BookUpdate{}, false
	}

	type level struct {
		price float64
		size  float64
	}
	levels := make([]level, 0, len(msg.Asks))
	for _, l := range msg.Asks {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		levels = append(levels, level{price: price, size: size})
	}
	if len(levels) == 0 {
		return model.BookUpdate{}, false
	}

	// Ask ordering on the wire is not guaranteed
	sort.Slice(levels, func(i, j int) bool { return levels[i].price < levels[j].price })

	liquidity := 0.0
	for i := 0; i < len(levels) && i < 3; i++ {
		liquidity += levels[i].size
	}

	return model.BookUpdate{
		InstrumentID: msg.AssetID,
		BestAsk:      levels[0].price,
		AskLiquidity: liquidity,
		HasLiquidity: true,
		Timestamp:    receivedAt,
	}, true
}

// normalizePriceChange maps a SELL-side change to a new best ask.
// BUY-side changes do not affect the ask and are dropped.
func (f *Feed) normalizePriceChange(data []byte, receivedAt time.Time) (model.BookUpdate, bool) {
	var msg priceChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable price_change message", "error", err)
		return model.BookUpdate{}, false
	}
	if msg.AssetID == "" || msg.Side != "SELL" {
		return model.BookUpdate{}, false
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return model.BookUpdate{}, false
	}
	size, err := strconv.ParseFloat(msg.Size, 64)
	if err != nil {
		return model.BookUpdate{}, false
	}

	return model.BookUpdate{
		InstrumentID: msg.AssetID,
		BestAsk:      price,
		AskLiquidity: size,
		HasLiquidity: true,
		Timestamp:    receivedAt,
	}, true
}

// normalizeLastTrade maps a trade print to a price-only update. The
// print carries no resting depth, so HasLiquidity is false and the
// consumer keeps its previous liquidity figure.
func (f *Feed) normalizeLastTrade(data []byte, receivedAt time.Time) (model.BookUpdate, bool) {
	var msg lastTradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable last_trade_price message", "error", err)
		return model.BookUpdate{}, false
	}
	if msg.AssetID == "" {
		return model.BookUpdate{}, false
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return model.BookUpdate{}, false
	}

	return model.BookUpdate{
		InstrumentID: msg.AssetID,
		BestAsk:      price,
		HasLiquidity: false,
		Timestamp:    receivedAt,
	}, true
}

func trimLeadingSpace(data []byte) []byte {
	i := 0
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r') {
		i++
	}
	return data[i:]
}
