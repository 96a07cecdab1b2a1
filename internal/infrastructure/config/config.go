package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Treasury  TreasuryConfig
	Lock      LockConfig
	Custody   CustodyConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool
	LogsEnabled       bool // Export zap logs over OTLP alongside the local sink
}

// TreasuryConfig configures the treasury HTTP gateway
type TreasuryConfig struct {
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker around treasury calls
type BreakerConfig struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32
}

// LockConfig selects the per-advance lock backend
type LockConfig struct {
	Backend    string // memory, redis
	TTL        time.Duration
	RetryDelay time.Duration
	MaxWait    time.Duration
}

// CustodyConfig holds engine settings
type CustodyConfig struct {
	DefaultPhoneRegion string
	// MaxConflictRetries of 0 selects the default; -1 disables retries
	MaxConflictRetries int
}

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CUSTODY_ prefix (e.g., CUSTODY_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CUSTODY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Treasury: TreasuryConfig{
			BaseURL: v.GetString("treasury.base_url"),
			Timeout: v.GetDuration("treasury.timeout"),
			Breaker: BreakerConfig{
				MaxRequests:         v.GetUint32("treasury.breaker.max_requests"),
				Interval:            v.GetDuration("treasury.breaker.interval"),
				Timeout:             v.GetDuration("treasury.breaker.timeout"),
				ConsecutiveFailures: v.GetUint32("treasury.breaker.consecutive_failures"),
			},
		},
		Lock: LockConfig{
			Backend:    strings.ToLower(v.GetString("lock.backend")),
			TTL:        v.GetDuration("lock.ttl"),
			RetryDelay: v.GetDuration("lock.retry_delay"),
			MaxWait:    v.GetDuration("lock.max_wait"),
		},
		Custody: CustodyConfig{
			DefaultPhoneRegion: strings.ToUpper(v.GetString("custody.default_phone_region")),
			MaxConflictRetries: v.GetInt("custody.max_conflict_retries"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "custody-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "custody"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Treasury.Timeout == 0 {
		cfg.Treasury.Timeout = 10 * time.Second
	}
	if cfg.Treasury.Breaker.MaxRequests == 0 {
		cfg.Treasury.Breaker.MaxRequests = 1
	}
	if cfg.Treasury.Breaker.Interval == 0 {
		cfg.Treasury.Breaker.Interval = time.Minute
	}
	if cfg.Treasury.Breaker.Timeout == 0 {
		cfg.Treasury.Breaker.Timeout = 30 * time.Second
	}
	if cfg.Treasury.Breaker.ConsecutiveFailures == 0 {
		cfg.Treasury.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = LockBackendMemory
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 30 * time.Second
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = 50 * time.Millisecond
	}
	if cfg.Lock.MaxWait == 0 {
		cfg.Lock.MaxWait = 15 * time.Second
	}
	if cfg.Custody.DefaultPhoneRegion == "" {
		cfg.Custody.DefaultPhoneRegion = "SA"
	}
	if cfg.Custody.MaxConflictRetries == 0 {
		cfg.Custody.MaxConflictRetries = 3
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Treasury.BaseURL != "" {
		u, err := url.Parse(c.Treasury.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("treasury.base_url %q is not an absolute URL", c.Treasury.BaseURL)
		}
	}
	if c.Treasury.Timeout < 0 {
		return fmt.Errorf("treasury.timeout cannot be negative")
	}

	switch c.Lock.Backend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("lock.backend must be %q or %q, got %q", LockBackendMemory, LockBackendRedis, c.Lock.Backend)
	}
	if c.Lock.TTL <= c.Treasury.Timeout {
		return fmt.Errorf("lock.ttl (%s) must exceed treasury.timeout (%s)", c.Lock.TTL, c.Treasury.Timeout)
	}

	if len(c.Custody.DefaultPhoneRegion) != 2 {
		return fmt.Errorf("custody.default_phone_region must be a two-letter region code, got %q", c.Custody.DefaultPhoneRegion)
	}
	if c.Custody.MaxConflictRetries < -1 {
		return fmt.Errorf("custody.max_conflict_retries must be -1 (no retries) or greater, got %d", c.Custody.MaxConflictRetries)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Treasury.BaseURL == "" {
			return fmt.Errorf("treasury.base_url is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
