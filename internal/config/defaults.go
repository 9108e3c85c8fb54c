package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCodec                = "json"
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultMaxReconnectAttempts = 8
	DefaultConnectTimeout       = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultEventBuffer          = 64
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 256
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 1024
	DefaultProbeInterval        = 30 * time.Second
	DefaultProbeConcurrency     = 4
	DefaultProbeTimeout         = 5 * time.Second
	DefaultHealthPort           = 8080
)

func (c *KeeperConfig) applyDefaults() {
	// Endpoint defaults
	for i := range c.Endpoints {
		if c.Endpoints[i].Codec == "" {
			c.Endpoints[i].Codec = DefaultCodec
		}
	}

	// Holder defaults
	if c.Holder.ReconnectBaseDelay == 0 {
		c.Holder.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Holder.MaxReconnectAttempts == 0 {
		c.Holder.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Holder.ConnectTimeout == 0 {
		c.Holder.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Holder.PingInterval == 0 {
		c.Holder.PingInterval = DefaultPingInterval
	}
	if c.Holder.PingTimeout == 0 {
		c.Holder.PingTimeout = DefaultPingTimeout
	}
	if c.Holder.EventBuffer == 0 {
		c.Holder.EventBuffer = DefaultEventBuffer
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Probe defaults
	if c.Probe.Interval == 0 {
		c.Probe.Interval = DefaultProbeInterval
	}
	if c.Probe.Concurrency == 0 {
		c.Probe.Concurrency = DefaultProbeConcurrency
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
