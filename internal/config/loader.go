package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "AGENTRELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTRELAY_CORS_ORIGIN")
	setInt64(&cfg.Server.BodyLimit, "AGENTRELAY_BODY_LIMIT")
	setString(&cfg.Storage.Driver, "AGENTRELAY_STORAGE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTRELAY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTRELAY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTRELAY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTRELAY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTRELAY_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "AGENTRELAY_NATS_STREAM")
	setString(&cfg.NATS.IdempotencyBucket, "AGENTRELAY_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.NATS.IdempotencyTTL, "AGENTRELAY_IDEMPOTENCY_TTL")
	setString(&cfg.Logging.Level, "AGENTRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTRELAY_LOG_SERVICE")
	setInt64(&cfg.Cache.MaxBytes, "AGENTRELAY_CACHE_MAX_BYTES")
	setDuration(&cfg.Cache.TaskTTL, "AGENTRELAY_CACHE_TASK_TTL")
	setDuration(&cfg.Cache.CardTTL, "AGENTRELAY_CACHE_CARD_TTL")
	setBool(&cfg.Push.Enabled, "AGENTRELAY_PUSH_ENABLED")
	setDuration(&cfg.Push.AttemptTimeout, "AGENTRELAY_PUSH_ATTEMPT_TIMEOUT")
	setUint64(&cfg.Push.MaxAttempts, "AGENTRELAY_PUSH_MAX_ATTEMPTS")
	setDuration(&cfg.Push.MaxElapsed, "AGENTRELAY_PUSH_MAX_ELAPSED")
	setInt(&cfg.Push.MaxConcurrent, "AGENTRELAY_PUSH_MAX_CONCURRENT")
	setBool(&cfg.Push.AllowPrivate, "AGENTRELAY_PUSH_ALLOW_PRIVATE")
	setString(&cfg.Push.Credential, "AGENTRELAY_PUSH_CREDENTIAL")
	setInt(&cfg.Breaker.MaxFailures, "AGENTRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTRELAY_BREAKER_TIMEOUT")
	setInt(&cfg.Broadcast.Buffer, "AGENTRELAY_BROADCAST_BUFFER")
	setInt(&cfg.History.DefaultLength, "AGENTRELAY_HISTORY_DEFAULT")
	setString(&cfg.Agent.Name, "AGENTRELAY_AGENT_NAME")
	setString(&cfg.Agent.URL, "AGENTRELAY_AGENT_URL")
	setBool(&cfg.Signing.Enabled, "AGENTRELAY_SIGNING_ENABLED")
	setString(&cfg.Signing.KeyFile, "AGENTRELAY_SIGNING_KEY_FILE")
	setString(&cfg.Signing.KeyID, "AGENTRELAY_SIGNING_KEY_ID")
	setBool(&cfg.Telemetry.Enabled, "AGENTRELAY_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "AGENTRELAY_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.driver must be memory or postgres, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Push.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when push is enabled")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Broadcast.Buffer < 1 {
		return errors.New("broadcast.buffer must be >= 1")
	}
	if cfg.History.DefaultLength < 0 {
		return errors.New("history.default_length must be >= 0")
	}
	if cfg.Signing.Enabled && cfg.Signing.KeyFile == "" {
		return errors.New("signing.key_file is required when signing is enabled")
	}
	return nil
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
