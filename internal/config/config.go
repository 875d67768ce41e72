package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CARE_DATABASE_HOST.
const EnvPrefix = "care"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	ShareToken ShareTokenConfig `mapstructure:"share_token" envconfig:"share_token"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" envconfig:"max_body_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
	MetricsPrefix  string        `mapstructure:"metrics_prefix" envconfig:"metrics_prefix"`
}

type DatabaseConfig struct {
	// Driver is postgres or memory.
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type ShareTokenConfig struct {
	// HashKey peppers the stored digest; at most 64 bytes.
	HashKey              string        `mapstructure:"hash_key" envconfig:"hash_key"`
	DefaultExpiryMinutes int           `mapstructure:"default_expiry_minutes" envconfig:"default_expiry_minutes"`
	MinExpiryMinutes     int           `mapstructure:"min_expiry_minutes" envconfig:"min_expiry_minutes"`
	MaxExpiryMinutes     int           `mapstructure:"max_expiry_minutes" envconfig:"max_expiry_minutes"`
	SessionLifetime      time.Duration `mapstructure:"session_lifetime" envconfig:"session_lifetime"`
}

type RateLimitConfig struct {
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	VerifyPerMinute int     `mapstructure:"verify_per_minute" envconfig:"verify_per_minute"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
}

type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

type WorkerConfig struct {
	// HealthPort serves the worker's health and metrics endpoints.
	HealthPort int `mapstructure:"health_port" envconfig:"health_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is console or json.
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.metrics_prefix", "care_access")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "care_access")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "care.events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("auth.issuer", "care-identity")

	v.SetDefault("share_token.default_expiry_minutes", 10)
	v.SetDefault("share_token.min_expiry_minutes", 1)
	v.SetDefault("share_token.max_expiry_minutes", 60)
	v.SetDefault("share_token.session_lifetime", 15*time.Minute)

	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.verify_per_minute", 10)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)

	v.SetDefault("sweeper.interval", 10*time.Minute)
	v.SetDefault("sweeper.retention", 24*time.Hour)

	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads config.yml (or CONFIG_FILE) over the built-in defaults,
// then applies CARE_* environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.ShareToken.HashKey == "" {
		problems = append(problems, "share_token.hash_key is required")
	}
	if len(c.ShareToken.HashKey) > 64 {
		problems = append(problems, "share_token.hash_key must be at most 64 bytes")
	}
	st := c.ShareToken
	if st.MinExpiryMinutes < 1 || st.MaxExpiryMinutes < st.MinExpiryMinutes ||
		st.DefaultExpiryMinutes < st.MinExpiryMinutes || st.DefaultExpiryMinutes > st.MaxExpiryMinutes {
		problems = append(problems, "share_token expiry bounds are inconsistent")
	}
	if st.SessionLifetime <= 0 {
		problems = append(problems, "share_token.session_lifetime must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
