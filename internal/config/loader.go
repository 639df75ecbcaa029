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
const DefaultConfigFile = "flowforge.yaml"

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
	setString(&cfg.Server.Port, "FLOWFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "FLOWFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FLOWFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FLOWFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FLOWFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FLOWFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FLOWFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "FLOWFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FLOWFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FLOWFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FLOWFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FLOWFORGE_BREAKER_TIMEOUT")
	setInt(&cfg.Retry.MaxRetries, "FLOWFORGE_RETRY_MAX")
	setDuration(&cfg.Retry.Delay, "FLOWFORGE_RETRY_DELAY")
	setInt64(&cfg.Cache.L1MaxSizeMB, "FLOWFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "FLOWFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "FLOWFORGE_CACHE_L2_TTL")
	setInt(&cfg.Orchestrator.MaxParallel, "FLOWFORGE_ORCH_MAX_PARALLEL")
	setDuration(&cfg.Orchestrator.PhaseTimeout, "FLOWFORGE_ORCH_PHASE_TIMEOUT")
	setDuration(&cfg.Orchestrator.ApprovalTimeout, "FLOWFORGE_ORCH_APPROVAL_TIMEOUT")
	setString(&cfg.Orchestrator.DefaultOnTimeout, "FLOWFORGE_ORCH_ON_TIMEOUT")
	setBool(&cfg.Orchestrator.ResultCache, "FLOWFORGE_ORCH_RESULT_CACHE")
	setInt(&cfg.Swarm.MaxRounds, "FLOWFORGE_SWARM_MAX_ROUNDS")
	setInt(&cfg.Swarm.FeedbackWindow, "FLOWFORGE_SWARM_FEEDBACK_WINDOW")
	setString(&cfg.Workflows.Dir, "FLOWFORGE_WORKFLOWS_DIR")
	setString(&cfg.MCP.Addr, "FLOWFORGE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "FLOWFORGE_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be >= 0")
	}
	if cfg.Orchestrator.MaxParallel < 1 {
		return errors.New("orchestrator.max_parallel must be >= 1")
	}
	switch cfg.Orchestrator.DefaultOnTimeout {
	case "approve", "reject":
	default:
		return errors.New(`orchestrator.default_on_timeout must be "approve" or "reject"`)
	}
	if cfg.Swarm.MaxRounds < 1 {
		return errors.New("swarm.max_rounds must be >= 1")
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
