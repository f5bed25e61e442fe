package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/secrets"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseDriver      string // mysql or sqlite
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Redis (alert fan-out)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Alert evaluation
	EvalIntervalSec int
	AlertMode       string // log, redis, or a comma-separated combination

	// HTTP API
	HTTPPort        int
	AnalyticsRPS    float64 // per-merchant rate limit on analytics endpoints
	DefaultWindow   string  // default rolling window for /metrics/aov
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "production"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseDSN:         secrets.GetOptionalSecret("DATABASE_DSN", "insightful:insightful@tcp(mysql:3306)/insightful_orders?parseTime=true"),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		RedisAddr:           getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:       secrets.GetOptionalSecret("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		EvalIntervalSec:     getEnvInt("EVAL_INTERVAL_SEC", 15),
		AlertMode:           getEnv("ALERT_MODE", "redis"),
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		AnalyticsRPS:        getEnvFloat("ANALYTICS_RPS", 5.0),
		DefaultWindow:       getEnv("DEFAULT_AOV_WINDOW", "30d"),
		ShutdownTimeout:     time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be mysql or sqlite)", c.DatabaseDriver)
	}

	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	if c.EvalIntervalSec <= 0 {
		return fmt.Errorf("EVAL_INTERVAL_SEC must be positive, got %d", c.EvalIntervalSec)
	}

	hasRedis := false
	for _, mode := range c.AlertModes() {
		switch mode {
		case "log":
		case "redis":
			hasRedis = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, redis)", mode)
		}
	}

	if hasRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when redis is in ALERT_MODE")
	}

	return nil
}

// AlertModes returns the configured alert modes, trimmed.
func (c *Config) AlertModes() []string {
	var modes []string
	for _, m := range strings.Split(c.AlertMode, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	return modes
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
