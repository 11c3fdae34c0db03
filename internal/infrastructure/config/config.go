package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cookie    CookieConfig    `mapstructure:"cookie"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds database connection settings. The lifetime
// fields are minutes.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds token issuance settings. Access tokens are JWTs;
// refresh tokens are opaque and persisted server-side, the expiration
// here bounds their lifetime.
type JWTConfig struct {
	Secret                 string        `mapstructure:"secret"`
	AccessTokenExpiration  time.Duration `mapstructure:"access_token_expiration"`
	RefreshTokenExpiration time.Duration `mapstructure:"refresh_token_expiration"`
	ChallengeExpiration    time.Duration `mapstructure:"challenge_expiration"`
	Issuer                 string        `mapstructure:"issuer"`
}

// AuthConfig holds login lockout policy
type AuthConfig struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	FailureWindow     time.Duration `mapstructure:"failure_window"`
	LockDuration      time.Duration `mapstructure:"lock_duration"`
	BackupCodeCount   int           `mapstructure:"backup_code_count"`
	EncryptionKey     string        `mapstructure:"encryption_key"`
}

// CookieConfig holds the settings for the refresh-token cookie.
type CookieConfig struct {
	Domain   string `mapstructure:"domain"`
	Path     string `mapstructure:"path"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// SameSiteMode maps the configured same_site string to its http value.
// Unknown values fall back to Lax.
func (c *CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes        int           `mapstructure:"max_header_bytes"`
	MaxBodySize           int64         `mapstructure:"max_body_size"`
	RateLimitEnabled      bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests     int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow       time.Duration `mapstructure:"rate_limit_window"`
	AuthRateLimitEnabled  bool          `mapstructure:"auth_rate_limit_enabled"`
	AuthRateLimitRequests int           `mapstructure:"auth_rate_limit_requests"`
	AuthRateLimitWindow   time.Duration `mapstructure:"auth_rate_limit_window"`
	CORSAllowOrigins      []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods      []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders      []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies        []string      `mapstructure:"trusted_proxies"`
}

// ExchangeConfig holds currency-exchange policy settings. The decimal
// thresholds stay strings so the domain layer parses them with full
// precision.
type ExchangeConfig struct {
	RateMaxAge              time.Duration `mapstructure:"rate_max_age"`
	RateCacheTTL            time.Duration `mapstructure:"rate_cache_ttl"`
	RateTolerance           string        `mapstructure:"rate_tolerance"`
	ManualApprovalThreshold string        `mapstructure:"manual_approval_threshold"`
	HoldRiskScore           int           `mapstructure:"hold_risk_score"`
	DailyCapWindow          time.Duration `mapstructure:"daily_cap_window"`
	StuckAfter              time.Duration `mapstructure:"stuck_after"`
	OrphanGrace             time.Duration `mapstructure:"orphan_grace"`
	ReconcileWindow         time.Duration `mapstructure:"reconcile_window"`
	SweepBatchSize          int           `mapstructure:"sweep_batch_size"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Retention     time.Duration `mapstructure:"retention"`
}

// SchedulerConfig holds background job scheduler configuration
type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RecoveryInterval  time.Duration `mapstructure:"recovery_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	TokenSweepCron    string        `mapstructure:"token_sweep_cron"`
	RetentionCron     string        `mapstructure:"retention_cron"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// Load reads configuration in ascending priority: built-in defaults,
// then config.toml, then environment variables with a KAMBIO_ prefix
// (KAMBIO_DATABASE_PASSWORD overrides database.password).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		// Running on defaults plus env vars alone is supported.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("KAMBIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with its default. Keys without a
// sensible default register empty so environment overrides still bind.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kambio-backend")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "kambio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.conn_max_idle_time", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expiration", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_expiration", 168*time.Hour)
	v.SetDefault("jwt.challenge_expiration", 5*time.Minute)
	v.SetDefault("jwt.issuer", "kambio-backend")

	v.SetDefault("auth.max_failed_attempts", 5)
	v.SetDefault("auth.failure_window", 15*time.Minute)
	v.SetDefault("auth.lock_duration", 2*time.Hour)
	v.SetDefault("auth.backup_code_count", 10)
	v.SetDefault("auth.encryption_key", "")

	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.path", "/")
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.same_site", "lax")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)
	// Payloads here are small JSON; 1MB is generous.
	v.SetDefault("http.max_body_size", 1<<20)
	v.SetDefault("http.rate_limit_enabled", false)
	v.SetDefault("http.rate_limit_requests", 100)
	v.SetDefault("http.rate_limit_window", time.Minute)
	// Stricter limits for auth endpoints to slow brute force.
	v.SetDefault("http.auth_rate_limit_enabled", false)
	v.SetDefault("http.auth_rate_limit_requests", 5)
	v.SetDefault("http.auth_rate_limit_window", time.Minute)
	// No origin default: cross-origin stays closed until configured.
	v.SetDefault("http.cors_allow_origins", []string{})
	v.SetDefault("http.cors_allow_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("http.cors_allow_headers", []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"})
	v.SetDefault("http.trusted_proxies", []string{})

	v.SetDefault("exchange.rate_max_age", 15*time.Minute)
	v.SetDefault("exchange.rate_cache_ttl", 30*time.Second)
	v.SetDefault("exchange.rate_tolerance", "0.01")
	v.SetDefault("exchange.manual_approval_threshold", "10000")
	v.SetDefault("exchange.hold_risk_score", 70)
	v.SetDefault("exchange.daily_cap_window", 24*time.Hour)
	v.SetDefault("exchange.stuck_after", 30*time.Minute)
	v.SetDefault("exchange.orphan_grace", time.Hour)
	v.SetDefault("exchange.reconcile_window", 48*time.Hour)
	v.SetDefault("exchange.sweep_batch_size", 100)

	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.flush_interval", 2*time.Second)
	v.SetDefault("audit.retention", 365*24*time.Hour)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.recovery_interval", 5*time.Minute)
	v.SetDefault("scheduler.reconcile_interval", time.Hour)
	v.SetDefault("scheduler.token_sweep_cron", "0 3 * * *")
	v.SetDefault("scheduler.retention_cron", "30 3 * * *")
	v.SetDefault("scheduler.job_timeout", 10*time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "kambio-backend")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.db_trace_enabled", false)
	v.SetDefault("telemetry.db_log_full_sql", false)
	v.SetDefault("telemetry.db_slow_query_threshold", 200*time.Millisecond)
}

// validate rejects settings that would be unsafe to run with.
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

	if c.App.Env == "production" {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateProduction() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 characters in production")
	}
	if len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("auth.encryption_key must be exactly 32 bytes in production")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("database.password is required in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database.sslmode cannot be 'disable' in production")
	}
	// Refresh tokens travel in this cookie.
	if !c.Cookie.Secure {
		return fmt.Errorf("cookie.secure must be true in production (HTTPS required for secure cookies)")
	}
	for _, origin := range c.HTTP.CORSAllowOrigins {
		if origin == "*" {
			return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
		}
	}
	// Full SQL logging leaks balances and account numbers into traces.
	if c.Telemetry.DBLogFullSQL {
		return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
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
