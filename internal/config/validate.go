package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *KeeperConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoints[%d].name is required", i)
		}
		if seen[ep.Name] {
			return fmt.Errorf("endpoints[%d].name %q is duplicated", i, ep.Name)
		}
		seen[ep.Name] = true
		if ep.URL == "" {
			return fmt.Errorf("endpoints[%d].url is required", i)
		}
		u, err := url.Parse(ep.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d].url: %v", i, err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("endpoints[%d].url scheme must be ws, wss, http or https, got %q", i, u.Scheme)
		}
		if ep.Codec != "json" && ep.Codec != "cbor" {
			return fmt.Errorf("endpoints[%d].codec must be json or cbor, got %q", i, ep.Codec)
		}
	}

	if c.Holder.MaxReconnectAttempts < 1 {
		return errors.New("holder.max_reconnect_attempts must be >= 1")
	}
	if c.Holder.ReconnectBaseDelay <= 0 {
		return errors.New("holder.reconnect_base_delay must be > 0")
	}

	if c.Journal.Enabled() {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Probe.Concurrency < 1 {
		return errors.New("probe.concurrency must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
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
