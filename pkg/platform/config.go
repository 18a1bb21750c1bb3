// Package platform wires the BI proxy together from configuration.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/ingest"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds the complete proxy configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Metabase MetabaseConfig    `yaml:"metabase"`
	Cache    CacheConfig       `yaml:"cache"`
	Auth     auth.APIKeyConfig `yaml:"auth"`
	Database DatabaseConfig    `yaml:"database"`
	Ingest   IngestConfig      `yaml:"ingest"`
	KPIs     []biproxy.KPI     `yaml:"kpis"`
}

// ServerConfig configures the outer surfaces.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Description     string        `yaml:"description"`
	Transport       string        `yaml:"transport"` // "stdio", "http"
	Address         string        `yaml:"address"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // "json", "text"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MetabaseConfig configures the engine client.
type MetabaseConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Token is a pre-provisioned session token used until it is rejected.
	Token string `yaml:"token"`

	DefaultTenant   string `yaml:"default_tenant"`
	TenantParameter string `yaml:"tenant_parameter"`

	SiteURL     string        `yaml:"site_url"` // defaults to URL
	EmbedSecret string        `yaml:"embed_secret"`
	EmbedTTL    time.Duration `yaml:"embed_ttl"`

	SessionTTL    time.Duration `yaml:"session_ttl"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rate_limit"`
	RateBurst     int           `yaml:"rate_burst"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the engine circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenRequests uint32        `yaml:"half_open_requests"`
}

// CacheConfig configures the tenant cache.
type CacheConfig struct {
	Backend         string        `yaml:"backend"` // "memory", "redis"
	TTL             time.Duration `yaml:"ttl"`
	MaxSize         int           `yaml:"max_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	RedisURL        string        `yaml:"redis_url"`
	KeyPrefix       string        `yaml:"key_prefix"`
}

// DatabaseConfig configures the warehouse connection used by ingestion.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	SkipMigrations bool   `yaml:"skip_migrations"`
}

// IngestConfig configures CSV ingestion. It is active when a database
// DSN is set.
type IngestConfig struct {
	RowsPerStatement int              `yaml:"rows_per_statement"`
	S3               *ingest.S3Config `yaml:"s3"`
}

// envOverrides are the environment variables that override file values.
type envOverrides struct {
	MetabaseURL     string `env:"MB_URL"`
	MetabaseUser    string `env:"MB_USER"`
	MetabasePass    string `env:"MB_PASS"`
	MetabaseToken   string `env:"MB_TOKEN"`
	DefaultTenant   string `env:"MB_TENANT_DEFAULT"`
	EmbedSecret     string `env:"MB_EMBED_SECRET"`
	CacheTTLSeconds int    `env:"BI_CACHE_TTL"`
	CacheMaxSize    int    `env:"BI_CACHE_MAX_SIZE"`
	RedisURL        string `env:"REDIS_URL"`
	DatabaseURL     string `env:"DATABASE_URL"`
}

// LoadConfig loads configuration from a file, then applies environment
// overrides and defaults. An empty path uses the environment alone.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- path is from CLI args, controlled by admin
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv overrides config values with the set environment variables.
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&cfg.Metabase.URL, o.MetabaseURL)
	setString(&cfg.Metabase.Username, o.MetabaseUser)
	setString(&cfg.Metabase.Password, o.MetabasePass)
	setString(&cfg.Metabase.Token, o.MetabaseToken)
	setString(&cfg.Metabase.DefaultTenant, o.DefaultTenant)
	setString(&cfg.Metabase.EmbedSecret, o.EmbedSecret)
	setString(&cfg.Cache.RedisURL, o.RedisURL)
	setString(&cfg.Database.DSN, o.DatabaseURL)

	if o.CacheTTLSeconds > 0 {
		cfg.Cache.TTL = time.Duration(o.CacheTTLSeconds) * time.Second
	}
	if o.CacheMaxSize > 0 {
		cfg.Cache.MaxSize = o.CacheMaxSize
	}
	if o.RedisURL != "" && cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheRedis
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "bi-proxy"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Metabase.SiteURL == "" {
		cfg.Metabase.SiteURL = cfg.Metabase.URL
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Metabase.URL == "" {
		errs = append(errs, "metabase.url is required")
	}
	if c.Metabase.Token == "" && (c.Metabase.Username == "" || c.Metabase.Password == "") {
		errs = append(errs, "metabase.username and metabase.password are required without metabase.token")
	}

	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("server.transport must be %q or %q", TransportStdio, TransportHTTP))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	if _, err := ParseLogLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be %q or %q", CacheMemory, CacheRedis))
	}

	errs = append(errs, keyErrors(c.Auth.Keys)...)
	errs = append(errs, kpiErrors(c.KPIs)...)

	if c.Ingest.S3 != nil && c.Database.DSN == "" {
		errs = append(errs, "ingest.s3 requires database.dsn")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func keyErrors(keys []auth.APIKey) []string {
	var errs []string
	names := make(map[string]bool, len(keys))
	for i, k := range keys {
		if k.Name == "" {
			errs = append(errs, fmt.Sprintf("auth.keys[%d].name is required", i))
		} else if names[k.Name] {
			errs = append(errs, fmt.Sprintf("auth.keys[%d].name %q is duplicated", i, k.Name))
		}
		names[k.Name] = true
		if k.Key == "" && k.KeyHash == "" {
			errs = append(errs, fmt.Sprintf("auth.keys[%d] needs key or key_hash", i))
		}
	}
	return errs
}

func kpiErrors(kpis []biproxy.KPI) []string {
	var errs []string
	slugs := make(map[string]bool, len(kpis))
	for i, k := range kpis {
		if k.Slug == "" {
			errs = append(errs, fmt.Sprintf("kpis[%d].slug is required", i))
		} else if slugs[k.Slug] {
			errs = append(errs, fmt.Sprintf("kpis[%d].slug %q is duplicated", i, k.Slug))
		}
		slugs[k.Slug] = true
		if k.CardID <= 0 {
			errs = append(errs, fmt.Sprintf("kpis[%d].card_id must be positive", i))
		}
		if !k.Shape.Valid() {
			errs = append(errs, fmt.Sprintf("kpis[%d].shape %q is invalid", i, k.Shape))
		}
	}
	return errs
}
