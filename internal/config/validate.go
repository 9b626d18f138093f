package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Discovery.RefreshInterval <= 0 {
		return errors.New("discovery.refresh_interval must be positive")
	}
	if c.Discovery.PageLimit < 1 {
		return errors.New("discovery.page_limit must be >= 1")
	}
	if len(c.Discovery.Assets) == 0 {
		return errors.New("discovery.assets must not be empty")
	}

	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Detector.MinSpreadPct < 0 {
		return errors.New("detector.min_spread_pct must be >= 0")
	}
	if c.Detector.PriceFloor >= c.Detector.PriceCeil {
		return fmt.Errorf("detector.price_floor (%v) must be below price_ceil (%v)",
			c.Detector.PriceFloor, c.Detector.PriceCeil)
	}

	if c.Snapshots.BatchSize < 1 {
		return errors.New("snapshots.batch_size must be >= 1")
	}
	if c.Snapshots.BufferSize < 1 {
		return errors.New("snapshots.buffer_size must be >= 1")
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
