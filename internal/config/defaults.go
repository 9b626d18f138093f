package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGammaURL   = "https://gamma-api.polymarket.com"
	DefaultClobURL    = "https://clob.polymarket.com"
	DefaultWSURL      = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultAPITimeout = 30 * time.Second
	DefaultMaxRetries = 3
	// Gamma documents 300 req per 10s on /events; run at 60% of that.
	DefaultRatePerSec = 18

	DefaultRefreshInterval   = 60 * time.Second
	DefaultPageLimit         = 500
	DefaultTimeframe         = "15m"
	DefaultBoundaryTolerance = 30 * time.Second

	DefaultPingInterval       = 30 * time.Second
	DefaultStaleTimeout       = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultFeedBufferSize     = 1000

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultMinSpreadPct = 0.5
	DefaultPriceFloor   = 0.01
	DefaultPriceCeil    = 0.99
	DefaultMinTick      = 0.02
	DefaultMinLiquidity = 10.0
	DefaultMinCombined  = 0.10

	DefaultSnapshotInterval   = 30 * time.Second
	DefaultSnapshotBatchSize  = 100
	DefaultSnapshotFlush      = 1 * time.Second
	DefaultSnapshotBufferSize = 1000

	DefaultStatusPort = 8080
)

func (c *MonitorConfig) applyDefaults() {
	// Discovery defaults
	if c.Discovery.GammaURL == "" {
		c.Discovery.GammaURL = DefaultGammaURL
	}
	if c.Discovery.ClobURL == "" {
		c.Discovery.ClobURL = DefaultClobURL
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = DefaultAPITimeout
	}
	if c.Discovery.MaxRetries == 0 {
		c.Discovery.MaxRetries = DefaultMaxRetries
	}
	if c.Discovery.RatePerSec == 0 {
		c.Discovery.RatePerSec = DefaultRatePerSec
	}
	if c.Discovery.RefreshInterval == 0 {
		c.Discovery.RefreshInterval = DefaultRefreshInterval
	}
	if c.Discovery.PageLimit == 0 {
		c.Discovery.PageLimit = DefaultPageLimit
	}
	if len(c.Discovery.Assets) == 0 {
		c.Discovery.Assets = []string{"BTC", "ETH", "XRP", "SOL"}
	}
	if c.Discovery.Timeframe == "" {
		c.Discovery.Timeframe = DefaultTimeframe
	}
	if c.Discovery.BoundaryTolerance == 0 {
		c.Discovery.BoundaryTolerance = DefaultBoundaryTolerance
	}

	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.StaleTimeout == 0 {
		c.Feed.StaleTimeout = DefaultStaleTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Detector defaults
	if c.Detector.MinSpreadPct == 0 {
		c.Detector.MinSpreadPct = DefaultMinSpreadPct
	}
	if c.Detector.PriceFloor == 0 {
		c.Detector.PriceFloor = DefaultPriceFloor
	}
	if c.Detector.PriceCeil == 0 {
		c.Detector.PriceCeil = DefaultPriceCeil
	}
	if c.Detector.MinTick == 0 {
		c.Detector.MinTick = DefaultMinTick
	}
	if c.Detector.MinLiquidity == 0 {
		c.Detector.MinLiquidity = DefaultMinLiquidity
	}
	if c.Detector.MinCombined == 0 {
		c.Detector.MinCombined = DefaultMinCombined
	}

	// Snapshot defaults
	if c.Snapshots.Interval == 0 {
		c.Snapshots.Interval = DefaultSnapshotInterval
	}
	if c.Snapshots.BatchSize == 0 {
		c.Snapshots.BatchSize = DefaultSnapshotBatchSize
	}
	if c.Snapshots.FlushInterval == 0 {
		c.Snapshots.FlushInterval = DefaultSnapshotFlush
	}
	if c.Snapshots.BufferSize == 0 {
		c.Snapshots.BufferSize = DefaultSnapshotBufferSize
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
}
