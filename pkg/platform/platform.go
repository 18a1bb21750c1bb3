package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/txn2/bi-proxy/pkg/api"
	_ "github.com/txn2/bi-proxy/pkg/api/docs" // register swagger docs
	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/database/migrate"
	"github.com/txn2/bi-proxy/pkg/health"
	"github.com/txn2/bi-proxy/pkg/ingest"
	"github.com/txn2/bi-proxy/pkg/ingest/postgres"
	"github.com/txn2/bi-proxy/pkg/metabase"
	"github.com/txn2/bi-proxy/pkg/metrics"
	"github.com/txn2/bi-proxy/pkg/toolkits/bi"
)

// Platform is the main platform facade.
type Platform struct {
	config *Config

	// Core components
	lifecycle *Lifecycle
	health    *health.Checker
	registry  *prometheus.Registry
	metrics   *metrics.Metrics

	// Engine and orchestration
	client *metabase.Client
	cache  cache.Cache
	bi     *biproxy.Service

	// Ingestion
	db           *sql.DB
	ownsDB       bool
	ingest       *ingest.Service
	objectIngest bool

	// Surfaces
	authenticator auth.Authenticator
	mcpServer     *mcp.Server
	toolkit       *bi.Toolkit
	api           *api.Handler
}

// New creates a new platform instance.
func New(ctx context.Context, opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
	}

	if err := p.initializeComponents(ctx, options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents initializes all platform components.
func (p *Platform) initializeComponents(ctx context.Context, opts *Options) error {
	p.initMetrics(opts)
	if err := p.initEngine(opts); err != nil {
		return err
	}
	if err := p.initCache(ctx, opts); err != nil {
		return err
	}
	p.initOrchestrator()
	if err := p.initIngest(ctx, opts); err != nil {
		return err
	}
	p.initAuth()
	p.initSurfaces()
	return nil
}

// initMetrics registers the proxy and runtime collectors.
func (p *Platform) initMetrics(opts *Options) {
	p.registry = opts.Registry
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	p.metrics = metrics.NewWithRegisterer(p.registry)
}

// initEngine creates the Metabase client.
func (p *Platform) initEngine(opts *Options) error {
	mb := p.config.Metabase
	clientOpts := []metabase.Option{metabase.WithLoginObserver(p.metrics.ObserveLogin)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, metabase.WithHTTPClient(opts.HTTPClient))
	}

	client, err := metabase.NewClient(metabase.Config{
		URL:        mb.URL,
		Username:   mb.Username,
		Password:   mb.Password,
		Token:      mb.Token,
		SessionTTL: mb.SessionTTL,
		Timeout:    mb.Timeout,
		RateLimit:  mb.RateLimit,
		RateBurst:  mb.RateBurst,
		Breaker: metabase.BreakerConfig{
			Enabled:          mb.Breaker.Enabled,
			FailureThreshold: mb.Breaker.FailureThreshold,
			OpenTimeout:      mb.Breaker.OpenTimeout,
			HalfOpenRequests: mb.Breaker.HalfOpenRequests,
		},
	}, clientOpts...)
	if err != nil {
		return fmt.Errorf("creating metabase client: %w", err)
	}
	p.client = client
	return nil
}

// initCache creates the configured cache backend.
func (p *Platform) initCache(ctx context.Context, opts *Options) error {
	cfg := cache.Config{
		TTL:             p.config.Cache.TTL,
		MaxSize:         p.config.Cache.MaxSize,
		CleanupInterval: p.config.Cache.CleanupInterval,
	}

	switch {
	case opts.Cache != nil:
		p.cache = opts.Cache
	case p.config.Cache.Backend == CacheRedis:
		rc, err := cache.NewRedisCache(ctx, p.config.Cache.RedisURL, p.config.Cache.KeyPrefix, cfg)
		if err != nil {
			return fmt.Errorf("creating redis cache: %w", err)
		}
		p.cache = rc
		p.health.AddProbe("redis", rc.Ping)
	default:
		mc := cache.NewMemoryCache(cfg)
		p.lifecycle.Append(Hook{
			Name: "cache cleanup",
			Start: func(context.Context) error {
				mc.StartCleanupRoutine()
				return nil
			},
			Stop: func(context.Context) error {
				return mc.Close()
			},
		})
		p.cache = mc
	}

	slog.Info("cache configured", "backend", p.config.Cache.Backend)
	return nil
}

// initOrchestrator creates the BI service.
func (p *Platform) initOrchestrator() {
	mb := p.config.Metabase
	p.bi = biproxy.New(p.client, p.cache, biproxy.Config{
		DefaultTenant:   mb.DefaultTenant,
		MaxConcurrent:   mb.MaxConcurrent,
		TenantParameter: mb.TenantParameter,
		KPIs:            p.config.KPIs,
	},
		biproxy.WithMetrics(p.metrics),
		biproxy.WithEmbedder(metabase.NewEmbedder(mb.SiteURL, mb.EmbedSecret, mb.EmbedTTL)),
	)
}

// initIngest opens the warehouse and creates the ingestion service when a
// database is available.
func (p *Platform) initIngest(ctx context.Context, opts *Options) error {
	p.db = opts.DB
	if p.db == nil && p.config.Database.DSN != "" {
		db, err := sql.Open("postgres", p.config.Database.DSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
		p.db = db
		p.ownsDB = true
	}
	if p.db == nil {
		return nil
	}
	p.health.AddProbe("database", p.db.PingContext)

	if !p.config.Database.SkipMigrations {
		p.lifecycle.Append(Hook{
			Name: "migrations",
			Start: func(context.Context) error {
				return migrate.Run(p.db)
			},
		})
	}

	ingestOpts := []ingest.Option{
		ingest.WithInvalidator(p.bi),
		ingest.WithMetrics(p.metrics),
	}
	src := opts.ObjectSource
	if src == nil && p.config.Ingest.S3 != nil {
		s3src, err := ingest.NewS3Source(ctx, *p.config.Ingest.S3)
		if err != nil {
			return fmt.Errorf("creating s3 source: %w", err)
		}
		src = s3src
	}
	if src != nil {
		ingestOpts = append(ingestOpts, ingest.WithObjectSource(src))
		p.objectIngest = true
	}

	store := postgres.New(p.db, postgres.Config{RowsPerStatement: p.config.Ingest.RowsPerStatement})
	p.ingest = ingest.NewService(store, ingestOpts...)
	return nil
}

// initAuth creates the API key authenticator when keys are configured.
func (p *Platform) initAuth() {
	if len(p.config.Auth.Keys) == 0 {
		slog.Warn("no api keys configured, HTTP surfaces are unauthenticated")
		return
	}
	p.authenticator = auth.NewAPIKeyAuthenticator(p.config.Auth)
}

// initSurfaces creates the MCP server and the HTTP API handler.
func (p *Platform) initSurfaces() {
	p.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    p.config.Server.Name,
		Version: p.config.Server.Version,
	}, nil)

	// New only fails on a nil service.
	p.toolkit, _ = bi.New("metabase", p.bi)
	p.toolkit.RegisterTools(p.mcpServer)
	p.toolkit.RegisterResources(p.mcpServer)
	p.registerInfoTool()
	if p.authenticator != nil {
		p.mcpServer.AddReceivingMiddleware(auth.MCPMiddleware(p.authenticator))
	}

	deps := api.Deps{BI: p.bi}
	if p.ingest != nil {
		deps.Ingest = p.ingest
	}
	p.api = api.NewHandler(deps, auth.Middleware(p.authenticator))
}

// Handler returns the HTTP surface: REST API, streamable MCP, metrics,
// probes and API docs.
func (p *Platform) Handler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return p.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/api/", p.api)
	mux.Handle("/mcp", auth.Middleware(p.authenticator)(mcpHandler))
	mux.Handle("GET /metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", p.health.LivenessHandler())
	mux.Handle("GET /readyz", p.health.ReadinessHandler())
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	return mux
}

// Start runs the start callbacks, marks the platform ready and checks the
// configured KPI cards.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()

	if len(p.config.KPIs) > 0 {
		p.checkKPICards(ctx, p.bi)
	}
	return nil
}

// Stop drains the platform and runs the stop callbacks.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// MCPServer returns the MCP server.
func (p *Platform) MCPServer() *mcp.Server {
	return p.mcpServer
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// BI returns the orchestrator.
func (p *Platform) BI() *biproxy.Service {
	return p.bi
}

// Ingest returns the ingestion service, or nil without a database.
func (p *Platform) Ingest() *ingest.Service {
	return p.ingest
}

// Health returns the health checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// closeResource closes a resource and appends any error.
func closeResource(errs *[]error, closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}

// Close closes all platform resources.
func (p *Platform) Close() error {
	var errs []error

	if p.toolkit != nil {
		closeResource(&errs, p.toolkit)
	}
	if p.cache != nil {
		closeResource(&errs, p.cache)
	}
	if p.ownsDB && p.db != nil {
		closeResource(&errs, p.db)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing platform: %v", errs)
	}
	return nil
}
