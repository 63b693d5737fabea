// Package config provides hierarchical configuration loading for Substrate.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Storage drivers.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds all runtime configuration for the Substrate service.
type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`
	Cache    Cache    `yaml:"cache"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Rate     Rate     `yaml:"rate"`
	Ledger   Ledger   `yaml:"ledger"`
	Chain    Chain    `yaml:"chain"`
	Social   Social   `yaml:"social"`
	Scanner  Scanner  `yaml:"scanner"`
	MCP      MCP      `yaml:"mcp"`
	OTEL     OTEL     `yaml:"otel"`
	Auth     Auth     `yaml:"auth"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	PublicURL      string        `yaml:"public_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Storage selects where ledger snapshots are persisted.
type Storage struct {
	Driver   string `yaml:"driver"` // "file" | "postgres"
	FilePath string `yaml:"file_path"`
}

// Postgres holds PostgreSQL connection configuration.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL selects the in-process queue.
type NATS struct {
	URL               string        `yaml:"url"`
	IdempotencyBucket string        `yaml:"idempotency_bucket"`
	IdempotencyTTL    time.Duration `yaml:"idempotency_ttl"`
}

// Cache holds the in-process cache budget and L2 expiry.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Ledger holds the economy rules.
type Ledger struct {
	GenesisName      string        `yaml:"genesis_name"`
	Tiers            Tiers         `yaml:"tiers"`
	FactionMinTier   string        `yaml:"faction_min_tier"`
	OperationWindow  time.Duration `yaml:"operation_window"`
	OperationLogSize int           `yaml:"operation_log_size"`
}

// Tiers holds tier thresholds as decimal strings.
type Tiers struct {
	Settler   string `yaml:"settler"`
	Builder   string `yaml:"builder"`
	Architect string `yaml:"architect"`
}

// Chain holds the read-only EVM RPC configuration. An empty RPC URL disables chain views.
type Chain struct {
	RPCURL          string        `yaml:"rpc_url"`
	RegistryAddress string        `yaml:"registry_address"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	MaxIdentities   int           `yaml:"max_identities"`
}

// Social holds announcement poster credentials. Unset posters are skipped.
type Social struct {
	MoltxURL       string        `yaml:"moltx_url"`
	MoltxKey       string        `yaml:"moltx_key"`
	DiscordWebhook string        `yaml:"discord_webhook"`
	SlackWebhook   string        `yaml:"slack_webhook"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Scanner holds the security scanner endpoint.
type Scanner struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// MCP holds the MCP tool server configuration. An empty Addr disables it.
type MCP struct {
	Addr string `yaml:"addr"`
}

// OTEL holds OpenTelemetry export configuration. An empty endpoint disables export.
type OTEL struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Auth holds the admin token hash guarding privileged routes.
type Auth struct {
	AdminTokenHash string `yaml:"admin_token_hash"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			PublicURL:      "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
		},
		Storage: Storage{
			Driver:   StorageFile,
			FilePath: "data/ledger.json",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			IdempotencyBucket: "SUBSTRATE_IDEMPOTENCY",
			IdempotencyTTL:    24 * time.Hour,
		},
		Cache: Cache{
			L1MaxSizeMB: 32,
			L2TTL:       10 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "substrate",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Ledger: Ledger{
			GenesisName: "Genesis",
			Tiers: Tiers{
				Settler:   "10",
				Builder:   "100",
				Architect: "500",
			},
			FactionMinTier:   "Builder",
			OperationWindow:  24 * time.Hour,
			OperationLogSize: 10000,
		},
		Chain: Chain{
			RegistryAddress: "0x8004A818BFB912233c491871b3d84c89A494BD9e",
			CacheTTL:        30 * time.Second,
			MaxConcurrent:   8,
			MaxIdentities:   200,
		},
		Social: Social{
			MoltxURL: "https://moltx.io",
			Timeout:  10 * time.Second,
		},
		Scanner: Scanner{
			Timeout: 30 * time.Second,
		},
		OTEL: OTEL{
			ServiceName: "substrate",
			Insecure:    true,
			SampleRate:  1.0,
		},
	}
}
