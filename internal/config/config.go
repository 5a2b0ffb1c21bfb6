package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"quantfolio/internal/logger"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Logging    logger.Config    `yaml:"logging"`
}

// AppConfig represents application identity configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig represents postgres configuration
type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig represents redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig represents JWT auth configuration
type JWTConfig struct {
	SecretKey string        `yaml:"secret_key"`
	Duration  time.Duration `yaml:"duration"`
}

// MonitoringConfig represents prometheus configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// RateLimitConfig represents API rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// MarketDataConfig represents the market data provider configuration
type MarketDataConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// SchedulerConfig represents the price refresh scheduler configuration
type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RefreshSpec string `yaml:"refresh_spec"` // cron spec
	Lookback    int    `yaml:"lookback"`     // trading days of history to fetch
}

// AnalyticsConfig represents engine defaults
type AnalyticsConfig struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	GridStep     float64 `yaml:"grid_step"`
}

// Load loads configuration from a YAML file with environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:    "quantfolio",
			Version: "dev",
			Env:     "development",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			MaxOpen: 25,
			MaxIdle: 5,
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		JWT: JWTConfig{
			Duration: 24 * time.Hour,
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: true,
			PrometheusPath:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		MarketData: MarketDataConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
			CacheTTL:          15 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			RefreshSpec: "0 30 18 * * MON-FRI",
			Lookback:    252,
		},
		Analytics: AnalyticsConfig{
			RiskFreeRate: 0.02,
			GridStep:     0.02,
		},
		Logging: logger.DefaultConfig,
	}
}

// applyEnvOverrides overrides sensitive or deployment-specific values from
// QUANTFOLIO_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUANTFOLIO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUANTFOLIO_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("QUANTFOLIO_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("QUANTFOLIO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QUANTFOLIO_JWT_SECRET"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("QUANTFOLIO_MARKET_API_KEY"); v != "" {
		cfg.MarketData.APIKey = v
	}
	if v := os.Getenv("QUANTFOLIO_MARKET_BASE_URL"); v != "" {
		cfg.MarketData.BaseURL = v
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Analytics.GridStep <= 0 || c.Analytics.GridStep > 1 {
		return fmt.Errorf("invalid grid step: %f", c.Analytics.GridStep)
	}
	if c.Scheduler.Enabled && c.Scheduler.RefreshSpec == "" {
		return fmt.Errorf("scheduler refresh spec is required when enabled")
	}
	return nil
}
