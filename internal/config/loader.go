package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "substrate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("SUBSTRATE_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SUBSTRATE_PORT")
	setString(&cfg.Server.CORSOrigin, "SUBSTRATE_CORS_ORIGIN")
	setString(&cfg.Server.PublicURL, "SUBSTRATE_PUBLIC_URL")
	setDuration(&cfg.Server.RequestTimeout, "SUBSTRATE_REQUEST_TIMEOUT")

	setString(&cfg.Storage.Driver, "SUBSTRATE_STORAGE_DRIVER")
	setString(&cfg.Storage.FilePath, "SUBSTRATE_STORAGE_FILE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SUBSTRATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SUBSTRATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SUBSTRATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SUBSTRATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SUBSTRATE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.IdempotencyBucket, "SUBSTRATE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.NATS.IdempotencyTTL, "SUBSTRATE_IDEMPOTENCY_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "SUBSTRATE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L2TTL, "SUBSTRATE_CACHE_L2_TTL")

	setString(&cfg.Logging.Level, "SUBSTRATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SUBSTRATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SUBSTRATE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "SUBSTRATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SUBSTRATE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "SUBSTRATE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "SUBSTRATE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "SUBSTRATE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "SUBSTRATE_RATE_MAX_IDLE_TIME")

	// Ledger
	setString(&cfg.Ledger.GenesisName, "SUBSTRATE_GENESIS_NAME")
	setString(&cfg.Ledger.Tiers.Settler, "SUBSTRATE_TIER_SETTLER")
	setString(&cfg.Ledger.Tiers.Builder, "SUBSTRATE_TIER_BUILDER")
	setString(&cfg.Ledger.Tiers.Architect, "SUBSTRATE_TIER_ARCHITECT")
	setString(&cfg.Ledger.FactionMinTier, "SUBSTRATE_FACTION_MIN_TIER")
	setDuration(&cfg.Ledger.OperationWindow, "SUBSTRATE_OPERATION_WINDOW")
	setInt(&cfg.Ledger.OperationLogSize, "SUBSTRATE_OPERATION_LOG_SIZE")

	// Collaborators
	setString(&cfg.Chain.RPCURL, "SUBSTRATE_CHAIN_RPC_URL")
	setString(&cfg.Chain.RegistryAddress, "SUBSTRATE_CHAIN_REGISTRY")
	setDuration(&cfg.Chain.CacheTTL, "SUBSTRATE_CHAIN_CACHE_TTL")
	setInt(&cfg.Chain.MaxConcurrent, "SUBSTRATE_CHAIN_MAX_CONCURRENT")
	setInt(&cfg.Chain.MaxIdentities, "SUBSTRATE_CHAIN_MAX_IDENTITIES")
	setString(&cfg.Social.MoltxURL, "SUBSTRATE_MOLTX_URL")
	setString(&cfg.Social.MoltxKey, "MOLTX_API_KEY")
	setString(&cfg.Social.DiscordWebhook, "SUBSTRATE_DISCORD_WEBHOOK")
	setString(&cfg.Social.SlackWebhook, "SUBSTRATE_SLACK_WEBHOOK")
	setDuration(&cfg.Social.Timeout, "SUBSTRATE_SOCIAL_TIMEOUT")
	setString(&cfg.Scanner.URL, "SUBSTRATE_SCANNER_URL")
	setString(&cfg.Scanner.APIKey, "SUBSTRATE_SCANNER_API_KEY")
	setDuration(&cfg.Scanner.Timeout, "SUBSTRATE_SCANNER_TIMEOUT")

	setString(&cfg.MCP.Addr, "SUBSTRATE_MCP_ADDR")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "SUBSTRATE_OTEL_SERVICE")
	setBool(&cfg.OTEL.Insecure, "SUBSTRATE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "SUBSTRATE_OTEL_SAMPLE_RATE")
	setString(&cfg.Auth.AdminTokenHash, "SUBSTRATE_ADMIN_TOKEN_HASH")
}

// validate checks that required fields are set and the ledger rules are coherent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case StorageFile:
		if cfg.Storage.FilePath == "" {
			return errors.New("storage.file_path is required for the file driver")
		}
	case StoragePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres driver")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of file, postgres", cfg.Storage.Driver)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Chain.MaxConcurrent < 1 {
		return errors.New("chain.max_concurrent must be >= 1")
	}
	if _, err := cfg.Ledger.Rules(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return nil
}

// Rules converts the ledger section into validated domain rules.
func (l Ledger) Rules() (ledger.Rules, error) {
	var tt ledger.TierTable
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"settler", l.Tiers.Settler, &tt.Settler},
		{"builder", l.Tiers.Builder, &tt.Builder},
		{"architect", l.Tiers.Architect, &tt.Architect},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return ledger.Rules{}, fmt.Errorf("tiers.%s %q is not a number", f.name, f.raw)
		}
		*f.dst = d
	}
	minTier, err := ledger.ParseTier(l.FactionMinTier)
	if err != nil {
		return ledger.Rules{}, fmt.Errorf("faction_min_tier: %w", err)
	}
	rules := ledger.Rules{
		Tiers:            tt,
		FactionMinTier:   minTier,
		OperationWindow:  l.OperationWindow,
		OperationLogSize: l.OperationLogSize,
	}
	if err := rules.Validate(); err != nil {
		return ledger.Rules{}, err
	}
	return rules, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
