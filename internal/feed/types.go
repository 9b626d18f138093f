package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no liveness)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command is a subscription control message sent to the feed.
type Command struct {
	Type     string   `json:"type"`    // "subscribe" or "unsubscribe"
	Channel  string   `json:"channel"` // "book"
	AssetIDs []string `json:"assets_ids"`
}

// bookMessage is a full order-book replacement for one instrument.
type bookMessage struct {
	AssetID string      `json:"asset_id"`
	Market  string      `json:"market"`
	Bids    []wireLevel `json:"bids"`
	Asks    []wireLevel `json:"asks"`
}

// wireLevel is a single price level; prices and sizes arrive as strings.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// priceChangeMessage is an incremental price/size change at one level.
type priceChangeMessage struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"` // "BUY" or "SELL"
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// lastTradeMessage is a last-trade print for an instrument.
type lastTradeMessage struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL
	PingInterval time.Duration // Keep-alive ping cadence
	StaleTimeout time.Duration // Max time without liveness before the connection is considered dead
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		StaleTimeout: 60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Config configures the Feed session layer.
type Config struct {
	WSURL              string
	PingInterval       time.Duration
	StaleTimeout       time.Duration
	WriteTimeout       time.Duration
	ReconnectBaseDelay time.Duration // Base wait time for reconnection
	ReconnectMaxDelay  time.Duration // Max wait time for reconnection
	BufferSize         int           // Buffer size for the updates channel
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:       30 * time.Second,
		StaleTimeout:       60 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		BufferSize:         1000,
	}
}
