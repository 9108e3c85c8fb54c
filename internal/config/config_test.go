package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-keeper
endpoints:
  - name: primary
    url: wss://db.example.com
    namespace: prod
    database: orders
    username: keeper
    password: secret
journal:
  database:
    host: localhost
    port: 5432
    name: keeper
    user: keeper
    password: journalpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-keeper" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-keeper")
	}
	if len(cfg.Endpoints) != 1 {
		t.Fatalf("Endpoints = %d, want 1", len(cfg.Endpoints))
	}
	if cfg.Endpoints[0].URL != "wss://db.example.com" {
		t.Errorf("Endpoints[0].URL = %q, want %q", cfg.Endpoints[0].URL, "wss://db.example.com")
	}
	if cfg.Journal.Database.Host != "localhost" {
		t.Errorf("Journal.Database.Host = %q, want %q", cfg.Journal.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SDB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-keeper
endpoints:
  - name: primary
    url: ws://localhost:8000
    username: keeper
    password: ${TEST_SDB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoints[0].Password != "secret123" {
		t.Errorf("Endpoints[0].Password = %q, want %q", cfg.Endpoints[0].Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-keeper
endpoints:
  - name: primary
    url: ws://localhost:8000
journal:
  database:
    host: localhost
    name: keeper
    user: keeper
    password: journalpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Endpoints[0].Codec != DefaultCodec {
		t.Errorf("Endpoints[0].Codec = %q, want default %q", cfg.Endpoints[0].Codec, DefaultCodec)
	}
	if cfg.Holder.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Holder.ReconnectBaseDelay = %v, want default %v", cfg.Holder.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Holder.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Holder.MaxReconnectAttempts = %d, want default %d", cfg.Holder.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Journal.BatchSize != DefaultBatchSize {
		t.Errorf("Journal.BatchSize = %d, want default %d", cfg.Journal.BatchSize, DefaultBatchSize)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestAutoReconnectDefault(t *testing.T) {
	yaml := `
instance:
  id: test-keeper
endpoints:
  - name: auto
    url: ws://localhost:8000
  - name: manual
    url: ws://localhost:8001
    auto_reconnect: false
  - name: explicit
    url: ws://localhost:8002
    auto_reconnect: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Endpoints[0].AutoReconnectEnabled() {
		t.Error("absent auto_reconnect should mean enabled")
	}
	if cfg.Endpoints[1].AutoReconnectEnabled() {
		t.Error("auto_reconnect: false should mean disabled")
	}
	if !cfg.Endpoints[2].AutoReconnectEnabled() {
		t.Error("auto_reconnect: true should mean enabled")
	}
}

func TestValidate(t *testing.T) {
	validEndpoint := EndpointConfig{Name: "primary", URL: "ws://localhost:8000", Codec: "json"}
	validHolder := HolderConfig{
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 8,
	}

	tests := []struct {
		name    string
		cfg     KeeperConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     KeeperConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "no endpoints",
			cfg: KeeperConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "at least one endpoint is required",
		},
		{
			name: "missing endpoint url",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{Name: "primary", Codec: "json"}},
			},
			wantErr: "endpoints[0].url is required",
		},
		{
			name: "duplicate endpoint names",
			cfg: KeeperConfig{
				Instance: InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{
					validEndpoint,
					{Name: "primary", URL: "ws://localhost:8001", Codec: "json"},
				},
			},
			wantErr: `endpoints[1].name "primary" is duplicated`,
		},
		{
			name: "unrecognized url scheme",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{Name: "primary", URL: "tcp://localhost:8000", Codec: "json"}},
			},
			wantErr: `endpoints[0].url scheme must be ws, wss, http or https, got "tcp"`,
		},
		{
			name: "bad codec",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{Name: "primary", URL: "ws://localhost:8000", Codec: "xml"}},
			},
			wantErr: `endpoints[0].codec must be json or cbor, got "xml"`,
		},
		{
			name: "missing journal password",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Holder:    validHolder,
				Journal: JournalConfig{
					Database:  DBConfig{Host: "localhost", Name: "keeper", User: "keeper", MaxConns: 4},
					BatchSize: 256, FlushInterval: time.Second, BufferSize: 1024,
				},
			},
			wantErr: "journal.database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Holder:    validHolder,
				Journal: JournalConfig{
					Database: DBConfig{
						Host: "localhost", Name: "keeper", User: "keeper", Password: "pass",
						MaxConns: 2, MinConns: 4,
					},
					BatchSize: 256, FlushInterval: time.Second, BufferSize: 1024,
				},
			},
			wantErr: "journal.database.min_conns (4) cannot exceed max_conns (2)",
		},
		{
			name: "valid config without journal",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Holder:    validHolder,
				Probe:     ProbeConfig{Concurrency: 4},
				Health:    HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
		{
			name: "valid config with journal",
			cfg: KeeperConfig{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Holder:    validHolder,
				Journal: JournalConfig{
					Database: DBConfig{
						Host: "localhost", Name: "keeper", User: "keeper", Password: "pass",
						MaxConns: 4, MinConns: 1,
					},
					BatchSize: 256, FlushInterval: time.Second, BufferSize: 1024,
				},
				Probe:  ProbeConfig{Concurrency: 4},
				Health: HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvURL, "wss://db.example.com")
	t.Setenv(EnvNamespace, "prod")
	t.Setenv(EnvDatabase, "orders")
	t.Setenv(EnvUsername, "keeper")
	t.Setenv(EnvPassword, "secret")
	t.Setenv(EnvScope, "")

	ep, ok := FromEnv()
	if !ok {
		t.Fatal("FromEnv() ok = false, want true")
	}
	if ep.URL != "wss://db.example.com" {
		t.Errorf("URL = %q, want %q", ep.URL, "wss://db.example.com")
	}
	if ep.Namespace != "prod" || ep.Database != "orders" {
		t.Errorf("Namespace/Database = %q/%q, want prod/orders", ep.Namespace, ep.Database)
	}
	if ep.Username != "keeper" || ep.Password != "secret" {
		t.Errorf("Username/Password = %q/%q, want keeper/secret", ep.Username, ep.Password)
	}
	if ep.Codec != DefaultCodec {
		t.Errorf("Codec = %q, want %q", ep.Codec, DefaultCodec)
	}
}

func TestFromEnvWithoutURL(t *testing.T) {
	t.Setenv(EnvURL, "")

	if _, ok := FromEnv(); ok {
		t.Error("FromEnv() ok = true without SDB_URL, want false")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
