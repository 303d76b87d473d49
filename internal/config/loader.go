package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file consulted when no explicit path
// is given. A missing file is not an error.
const DefaultConfigFile = "fleetsim.yaml"

// Load builds the configuration from defaults, the default config file
// and the environment, in that order of precedence.
func Load() (Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if err := loadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	loadEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	setString("FLEETSIM_LOG_LEVEL", &cfg.Logging.Level)
	setString("FLEETSIM_LOG_SERVICE", &cfg.Logging.Service)
	setBool("FLEETSIM_LOG_ASYNC", &cfg.Logging.Async)

	setString("FLEETSIM_STORE_DRIVER", &cfg.Store.Driver)
	setBool("FLEETSIM_STORE_DEMO", &cfg.Store.Demo)

	setString("DATABASE_URL", &cfg.Postgres.DSN)
	setInt32("FLEETSIM_PG_MAX_CONNS", &cfg.Postgres.MaxConns)
	setInt32("FLEETSIM_PG_MIN_CONNS", &cfg.Postgres.MinConns)
	setDuration("FLEETSIM_PG_MAX_CONN_LIFETIME", &cfg.Postgres.MaxConnLifetime)
	setDuration("FLEETSIM_PG_MAX_CONN_IDLE_TIME", &cfg.Postgres.MaxConnIdleTime)
	setDuration("FLEETSIM_PG_HEALTH_CHECK", &cfg.Postgres.HealthCheck)

	setBool("FLEETSIM_NATS_ENABLED", &cfg.NATS.Enabled)
	setString("NATS_URL", &cfg.NATS.URL)

	setString("FLEETSIM_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)

	setDuration("FLEETSIM_ADVISOR_TIMEOUT", &cfg.Advisor.Timeout)
	setDuration("FLEETSIM_ADVISOR_RETRY_DELAY", &cfg.Advisor.RetryDelay)
	setInt("FLEETSIM_BREAKER_MAX_FAILURES", &cfg.Breaker.MaxFailures)
	setDuration("FLEETSIM_BREAKER_COOLDOWN", &cfg.Breaker.Cooldown)

	setBool("FLEETSIM_SIM_ENABLED", &cfg.Simulation.Enabled)
	setFloat64("FLEETSIM_SIM_SPEED", &cfg.Simulation.Speed)
	setInt64("FLEETSIM_SIM_SEED", &cfg.Simulation.Seed)

	setDuration("FLEETSIM_DISPATCH_INTERVAL", &cfg.Dispatch.Interval)
	setDuration("FLEETSIM_MONITOR_INTERVAL", &cfg.Monitor.Interval)

	setDuration("FLEETSIM_ROUTE_TTL", &cfg.Routing.CacheTTL)
	setInt("FLEETSIM_ROUTE_PLAN_LIMIT", &cfg.Routing.PlanLimit)
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn: required when store.driver is postgres")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url: required when nats.enabled is true")
	}
	if c.Simulation.Speed <= 0 {
		return fmt.Errorf("simulation.speed: must be positive, got %v", c.Simulation.Speed)
	}
	if c.Breaker.MaxFailures < 1 {
		return fmt.Errorf("breaker.max_failures: must be at least 1, got %d", c.Breaker.MaxFailures)
	}
	if c.Dispatch.Interval <= 0 {
		return fmt.Errorf("dispatch.interval: must be positive, got %v", c.Dispatch.Interval)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval: must be positive, got %v", c.Monitor.Interval)
	}
	if c.Routing.CacheTTL <= 0 {
		return fmt.Errorf("routing.cache_ttl: must be positive, got %v", c.Routing.CacheTTL)
	}
	if c.Routing.PlanLimit < 1 {
		return fmt.Errorf("routing.plan_limit: must be at least 1, got %d", c.Routing.PlanLimit)
	}
	return nil
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(key string, dst *int32) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
