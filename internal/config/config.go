package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

const (
	defaultServiceName    = "rawaudit"
	defaultServiceVersion = "0.1.0"
	defaultServicePort    = 8090

	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBUser         = "postgres"
	defaultDBName         = "rawaudit"
	defaultDBSSLMode      = "disable"
	defaultDBMaxConns     = 25
	defaultDBMaxIdleConns = 5
	defaultDBConnLifetime = time.Hour

	defaultRedisAddr   = "localhost:6379"
	defaultRedisStream = "rawaudit:activity"
	defaultRedisMaxLen = 10000

	defaultMaxPages       = 25
	defaultRequestTimeout = 10 * time.Second
	defaultMaxBodySize    = 10 * 1024 * 1024
	defaultBodyTextLimit  = 5000
	defaultUserAgent      = "rawaudit/1.0 (+https://rawinstinctart.com/bot)"

	defaultImageTimeout     = 10 * time.Second
	defaultImageMaxBytes    = 25 * 1024 * 1024
	defaultImageConcurrency = 4
	defaultImageMaxPixels   = 25_000_000

	defaultSuggestProvider  = "rule"
	defaultSuggestModel     = "claude-haiku-4-5"
	defaultSuggestMaxTokens = 1024
	defaultSuggestTimeout   = 20 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerCooldown  = time.Minute

	defaultPolicy        = "balanced"
	defaultMaxConcurrent = 2

	defaultSweepLookback = 24 * time.Hour
)

// Supported suggestion provider names.
const (
	ProviderRule      = "rule"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Images   ImagesConfig   `yaml:"images"`
	Suggest  SuggestConfig  `yaml:"suggest"`
	Audit    AuditConfig    `yaml:"audit"`
	Sweeps   SweepsConfig   `yaml:"sweeps"`
	Logging  logger.Config  `yaml:"logging"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"RAWAUDIT_PORT"  yaml:"port"`
	Debug   bool   `env:"RAWAUDIT_DEBUG" yaml:"debug"`
}

type DatabaseConfig struct {
	Host                  string        `env:"RAWAUDIT_DB_HOST"     yaml:"host"`
	Port                  int           `env:"RAWAUDIT_DB_PORT"     yaml:"port"`
	User                  string        `env:"RAWAUDIT_DB_USER"     yaml:"user"`
	Password              string        `env:"RAWAUDIT_DB_PASSWORD" yaml:"password"`
	Database              string        `env:"RAWAUDIT_DB_NAME"     yaml:"database"`
	SSLMode               string        `env:"RAWAUDIT_DB_SSLMODE"  yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN renders a lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	parts := []string{
		"host=" + d.Host,
		fmt.Sprintf("port=%d", d.Port),
		"user=" + d.User,
		"dbname=" + d.Database,
		"sslmode=" + d.SSLMode,
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	return strings.Join(parts, " ")
}

// RedisConfig configures the activity stream. Disabled unless Enabled is set.
type RedisConfig struct {
	Enabled  bool   `env:"RAWAUDIT_REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"RAWAUDIT_REDIS_ADDR"     yaml:"address"`
	Password string `env:"RAWAUDIT_REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"RAWAUDIT_REDIS_DB"       yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type CrawlerConfig struct {
	MaxPages         int           `env:"RAWAUDIT_MAX_PAGES" yaml:"max_pages"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxBodySize      int           `yaml:"max_body_size"`
	BodyTextLimit    int           `yaml:"body_text_limit"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
}

type ImagesConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	Concurrency  int           `yaml:"concurrency"`
	// MaxDecodePixels caps the declared canvas of PNGs decoded for opacity.
	MaxDecodePixels int64 `yaml:"max_decode_pixels"`
}

// SuggestConfig selects the suggestion backend. The rule provider needs no
// credentials; "anthropic" requires APIKey and falls back to rules on error.
type SuggestConfig struct {
	Provider        string        `env:"RAWAUDIT_SUGGEST_PROVIDER" yaml:"provider"`
	APIKey          string        `env:"ANTHROPIC_API_KEY"         yaml:"api_key"`
	BaseURL         string        `env:"ANTHROPIC_BASE_URL"        yaml:"base_url"`
	Model           string        `env:"RAWAUDIT_SUGGEST_MODEL"    yaml:"model"`
	MaxTokens       int64         `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type AuditConfig struct {
	DefaultPolicy       string `env:"RAWAUDIT_DEFAULT_POLICY"   yaml:"default_policy"`
	MaxConcurrentAudits int    `yaml:"max_concurrent_audits"`
	AutoFixOnFinalize   bool   `env:"RAWAUDIT_AUTO_FIX"         yaml:"auto_fix_on_finalize"`
	AutoApplyOnFinalize bool   `env:"RAWAUDIT_AUTO_APPLY"       yaml:"auto_apply_on_finalize"`
}

// SweepsConfig schedules the periodic auto-apply sweep. An empty Schedule
// disables it.
type SweepsConfig struct {
	Schedule string        `env:"RAWAUDIT_SWEEP_SCHEDULE" yaml:"schedule"`
	Lookback time.Duration `yaml:"lookback"`
}

// Load reads path (optional), applies defaults and env overrides, then
// validates.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a validated configuration built from defaults only.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return &ValidationError{Field: "service.port", Message: "must be between 1 and 65535"}
	}
	if c.Crawler.MaxPages <= 0 {
		return &ValidationError{Field: "crawler.max_pages", Message: "must be positive"}
	}
	switch strings.ToLower(c.Suggest.Provider) {
	case ProviderRule:
	case ProviderAnthropic:
		if c.Suggest.APIKey == "" {
			return &ValidationError{Field: "suggest.api_key", Message: "is required for the anthropic provider"}
		}
	default:
		return &ValidationError{Field: "suggest.provider", Message: fmt.Sprintf("unknown provider %q", c.Suggest.Provider)}
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return &ValidationError{Field: "redis.address", Message: "is required when redis is enabled"}
	}
	return nil
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setCrawlerDefaults(&cfg.Crawler)
	setImagesDefaults(&cfg.Images)
	setSuggestDefaults(&cfg.Suggest)

	if cfg.Audit.DefaultPolicy == "" {
		cfg.Audit.DefaultPolicy = defaultPolicy
	}
	if cfg.Audit.MaxConcurrentAudits <= 0 {
		cfg.Audit.MaxConcurrentAudits = defaultMaxConcurrent
	}
	if cfg.Sweeps.Lookback <= 0 {
		cfg.Sweeps.Lookback = defaultSweepLookback
	}

	cfg.Logging.SetDefaults()
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnectionMaxLifetime == 0 {
		d.ConnectionMaxLifetime = defaultDBConnLifetime
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddr
	}
	if r.Stream == "" {
		r.Stream = defaultRedisStream
	}
	if r.MaxLen == 0 {
		r.MaxLen = defaultRedisMaxLen
	}
}

func setCrawlerDefaults(c *CrawlerConfig) {
	if c.MaxPages == 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.BodyTextLimit == 0 {
		c.BodyTextLimit = defaultBodyTextLimit
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

func setImagesDefaults(i *ImagesConfig) {
	if i.FetchTimeout == 0 {
		i.FetchTimeout = defaultImageTimeout
	}
	if i.MaxBytes == 0 {
		i.MaxBytes = defaultImageMaxBytes
	}
	if i.Concurrency <= 0 {
		i.Concurrency = defaultImageConcurrency
	}
	if i.MaxDecodePixels <= 0 {
		i.MaxDecodePixels = defaultImageMaxPixels
	}
}

func setSuggestDefaults(s *SuggestConfig) {
	if s.Provider == "" {
		s.Provider = defaultSuggestProvider
	}
	s.Provider = strings.ToLower(s.Provider)
	if s.Model == "" {
		s.Model = defaultSuggestModel
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = defaultSuggestMaxTokens
	}
	if s.Timeout == 0 {
		s.Timeout = defaultSuggestTimeout
	}
	if s.BreakerFailures == 0 {
		s.BreakerFailures = defaultBreakerFailures
	}
	if s.BreakerCooldown == 0 {
		s.BreakerCooldown = defaultBreakerCooldown
	}
}
