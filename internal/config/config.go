package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Feed      FeedConfig      `yaml:"feed"`
	Database  DBConfig        `yaml:"database"`
	Detector  DetectorConfig  `yaml:"detector"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Status    StatusConfig    `yaml:"status"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DiscoveryConfig holds Gamma API discovery settings.
type DiscoveryConfig struct {
	GammaURL   string        `yaml:"gamma_url"`
	ClobURL    string        `yaml:"clob_url"` // REST CLOB host, used by the scan tool
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RatePerSec int           `yaml:"rate_per_sec"` // request budget toward the Gamma API

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	PageLimit       int           `yaml:"page_limit"` // events per discovery request

	Assets    []string `yaml:"assets"`    // tracked asset tags, e.g. [BTC, ETH, XRP, SOL]
	Timeframe string   `yaml:"timeframe"` // market timeframe tag, e.g. "15m"

	// Boundary mode admits only markets resolving at the next synchronized
	// boundary, rotating the tracked set forward each cycle.
	BoundaryMode      bool          `yaml:"boundary_mode"`
	BoundaryTolerance time.Duration `yaml:"boundary_tolerance"`
}

// FeedConfig holds WebSocket feed settings.
type FeedConfig struct {
	WSURL              string        `yaml:"ws_url"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	StaleTimeout       time.Duration `yaml:"stale_timeout"` // no liveness for this long = disconnect
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BufferSize         int           `yaml:"buffer_size"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DetectorConfig holds opportunity detection thresholds.
type DetectorConfig struct {
	MinSpreadPct float64 `yaml:"min_spread_pct"` // noise floor, percent of combined cost
	PriceFloor   float64 `yaml:"price_floor"`    // asks at or below are placeholder ticks
	PriceCeil    float64 `yaml:"price_ceil"`     // asks at or above are placeholder ticks
	MinTick      float64 `yaml:"min_tick"`       // exchange minimum tradable increment
	MinLiquidity float64 `yaml:"min_liquidity"`  // required depth when both asks sit at min tick
	MinCombined  float64 `yaml:"min_combined"`   // combined below this is a stale/fake tick
}

// SnapshotsConfig holds the periodic snapshot writer settings.
type SnapshotsConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// StatusConfig holds the read-only status HTTP endpoint settings.
type StatusConfig struct {
	Port int `yaml:"port"`
}
