package platform

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/ingest"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// DB is the warehouse connection (optional, opened from database.dsn
	// if not provided). A provided DB is not closed by the platform.
	DB *sql.DB

	// Cache (optional, created from config if not provided). It is closed
	// by Platform.Close either way.
	Cache cache.Cache

	// Registry receives the proxy metrics (optional, a fresh registry is
	// created if not provided).
	Registry *prometheus.Registry

	// ObjectSource (optional, created from ingest.s3 if not provided).
	ObjectSource ingest.ObjectSource

	// HTTPClient is used for Metabase requests (optional).
	HTTPClient *http.Client
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithCache sets the cache backend.
func WithCache(c cache.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithRegistry sets the metrics registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *Options) {
		o.Registry = reg
	}
}

// WithObjectSource sets the CSV object source.
func WithObjectSource(src ingest.ObjectSource) Option {
	return func(o *Options) {
		o.ObjectSource = src
	}
}

// WithHTTPClient sets the HTTP client used for Metabase.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}
