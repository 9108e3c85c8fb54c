package config

import "time"

// KeeperConfig is the root configuration for a keeper instance.
type KeeperConfig struct {
	Instance  InstanceConfig   `yaml:"instance"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Holder    HolderConfig     `yaml:"holder"`
	Journal   JournalConfig    `yaml:"journal"`
	Probe     ProbeConfig      `yaml:"probe"`
	Health    HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this keeper.
type InstanceConfig struct {
	ID          string `yaml:"id"`
	Environment string `yaml:"environment"`
}

// EndpointConfig describes one supervised endpoint: where to connect
// and what to sign in as. Credential fields left empty are treated as
// absent when the credential shape is resolved.
type EndpointConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"` // ws://, wss://, http:// or https://
	Namespace     string `yaml:"namespace"`
	Database      string `yaml:"database"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Scope         string `yaml:"scope"`
	Codec         string `yaml:"codec"`          // json or cbor
	AutoReconnect *bool  `yaml:"auto_reconnect"` // absent means enabled
}

// AutoReconnectEnabled reports the endpoint's reconnect mode; an
// absent field means enabled.
func (e EndpointConfig) AutoReconnectEnabled() bool {
	return e.AutoReconnect == nil || *e.AutoReconnect
}

// HolderConfig holds connection holder settings shared by all
// endpoints.
type HolderConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	EventBuffer          int           `yaml:"event_buffer"`
}

// JournalConfig holds the lifecycle event journal settings. The
// journal is active when database.host is set and off otherwise.
type JournalConfig struct {
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// Enabled reports whether a journal database is configured.
func (j JournalConfig) Enabled() bool {
	return j.Database.Host != ""
}

// DBConfig holds a single database connection.
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

// ProbeConfig holds liveness probe settings.
type ProbeConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// HealthConfig holds the health/debug HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
