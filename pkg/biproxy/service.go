// Package biproxy executes analytics cards on behalf of tenants, serving
// repeated requests from a tenant-scoped cache. Every request produces an
// envelope; engine failures never escape as errors.
package biproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/metabase"
	"github.com/txn2/bi-proxy/pkg/metrics"
)

// Request states, logged at debug level.
const (
	statePending    = "pending"
	stateCacheHit   = "cache_hit"
	stateCacheMiss  = "cache_miss"
	stateFetching   = "fetching"
	stateSuccess    = "success"
	stateCacheWrite = "cache_write"
	stateFailure    = "failure"
	stateDone       = "done"
)

// Config configures the service.
type Config struct {
	DefaultTenant   string
	MaxConcurrent   int
	TenantParameter string
	KPIs            []KPI
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEmbedder enables EmbedURL.
func WithEmbedder(e *metabase.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// Service is the BI proxy orchestrator.
type Service struct {
	engine   Engine
	cache    cache.Cache
	embedder *metabase.Embedder
	metrics  *metrics.Metrics
	cfg      Config
	kpis     map[string]KPI

	now       func() time.Time
	startedAt time.Time
}

// New creates a service over the engine and cache.
func New(engine Engine, c cache.Cache, cfg Config, opts ...Option) *Service {
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = cache.DefaultTenant
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	s := &Service{
		engine: engine,
		cache:  c,
		cfg:    cfg,
		kpis:   make(map[string]KPI, len(cfg.KPIs)),
		now:    time.Now,
	}
	for _, k := range cfg.KPIs {
		s.kpis[k.Slug] = k
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// DefaultTenant returns the tenant used when a request names none.
func (s *Service) DefaultTenant() string {
	return s.cfg.DefaultTenant
}

func (s *Service) tenant(t string) string {
	if t == "" {
		return s.cfg.DefaultTenant
	}
	return t
}

// ExecuteCard runs one card for a tenant. The returned envelope reports
// success or failure; it is never nil.
func (s *Service) ExecuteCard(ctx context.Context, cardID int, params metabase.Parameters, tenant string, opts CacheOptions) (res *Result) {
	start := s.now()
	tenant = s.tenant(tenant)
	if params == nil {
		params = metabase.Parameters{}
	}
	logger := slog.With("card_id", cardID, "tenant", tenant)
	logger.Debug("bi request", "state", statePending)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic executing card", "panic", r)
			res = s.failure(cardID, tenant, params, fmt.Errorf("internal error: %v", r))
		}
		res.Metadata.DurationMS = s.now().Sub(start).Milliseconds()
		s.metrics.ObserveExecution(string(res.Metadata.Source), res.Success, s.now().Sub(start))
		logger.Debug("bi request", "state", stateDone, "source", res.Metadata.Source)
	}()

	if opts.UseCache && !opts.ForceFresh {
		if hit := s.lookup(ctx, logger, cardID, params, tenant); hit != nil {
			return hit
		}
	}

	logger.Debug("bi request", "state", stateFetching)
	raw, err := s.engine.ExecuteCard(ctx, cardID, s.engineParams(params, tenant))
	if err != nil {
		logger.Warn("card execution failed", "error", err)
		return s.failure(cardID, tenant, params, err)
	}
	logger.Debug("bi request", "state", stateSuccess, "rows", len(raw.Rows))

	fetchedAt := s.now()
	res = &Result{
		Success: true,
		Data:    raw.Records(),
		Columns: raw.Columns,
		Metadata: Metadata{
			CardID:     cardID,
			Tenant:     tenant,
			Parameters: params,
			Source:     SourceMetabase,
			FetchedAt:  &fetchedAt,
		},
		raw: raw,
	}

	if opts.UseCache {
		s.store(ctx, logger, cardID, params, tenant, raw, opts.CustomTTL)
	}
	return res
}

func (s *Service) lookup(ctx context.Context, logger *slog.Logger, cardID int, params metabase.Parameters, tenant string) *Result {
	entry, err := s.cache.Get(ctx, cardID, params, tenant)
	if err != nil {
		logger.Warn("cache lookup failed", "error", err)
		entry = nil
	}

	var raw metabase.Result
	if entry != nil {
		if err := json.Unmarshal(entry.Data, &raw); err != nil {
			logger.Warn("discarding undecodable cache entry", "error", err)
			entry = nil
		}
	}
	s.metrics.ObserveCacheLookup(entry != nil)
	if entry == nil {
		logger.Debug("bi request", "state", stateCacheMiss)
		return nil
	}

	logger.Debug("bi request", "state", stateCacheHit)
	cachedAt, expiresAt := entry.CachedAt, entry.ExpiresAt
	return &Result{
		Success: true,
		Data:    raw.Records(),
		Columns: raw.Columns,
		Metadata: Metadata{
			CardID:     cardID,
			Tenant:     tenant,
			Parameters: params,
			FromCache:  true,
			Source:     SourceCache,
			CachedAt:   &cachedAt,
			ExpiresAt:  &expiresAt,
		},
		raw: &raw,
	}
}

// store writes a fresh result. Failures are logged and counted only.
func (s *Service) store(ctx context.Context, logger *slog.Logger, cardID int, params metabase.Parameters, tenant string, raw *metabase.Result, ttl time.Duration) {
	logger.Debug("bi request", "state", stateCacheWrite)
	data, err := json.Marshal(raw)
	if err == nil {
		err = s.cache.Set(ctx, cardID, params, tenant, data, ttl)
	}
	if err != nil {
		s.metrics.ObserveCacheWriteFailure()
		logger.Warn("cache write failed", "error", err)
	}
}

func (s *Service) failure(cardID int, tenant string, params metabase.Parameters, err error) *Result {
	at := s.now()
	return &Result{
		Success: false,
		Error:   err.Error(),
		Metadata: Metadata{
			CardID:     cardID,
			Tenant:     tenant,
			Parameters: params,
			Source:     SourceError,
			ErrorAt:    &at,
		},
		err: err,
	}
}

// engineParams adds the tenant under the configured template tag unless
// the caller already supplied it.
func (s *Service) engineParams(params metabase.Parameters, tenant string) metabase.Parameters {
	if s.cfg.TenantParameter == "" {
		return params
	}
	if _, ok := params[s.cfg.TenantParameter]; ok {
		return params
	}
	out := params.Clone()
	out[s.cfg.TenantParameter] = tenant
	return out
}

// InvalidateCard removes cached results for a card. An empty tenant
// removes them for every tenant.
func (s *Service) InvalidateCard(ctx context.Context, cardID int, tenant string) (int, error) {
	var (
		n   int
		err error
	)
	if tenant == "" {
		n, err = s.cache.DeleteCard(ctx, cardID)
	} else {
		n, err = s.cache.DeleteCardTenant(ctx, cardID, tenant)
	}
	if err != nil {
		return 0, fmt.Errorf("invalidating card %d: %w", cardID, err)
	}
	slog.Info("invalidated card cache", "card_id", cardID, "tenant", tenant, "entries", n)
	return n, nil
}

// InvalidateTenant removes every cached result for a tenant.
func (s *Service) InvalidateTenant(ctx context.Context, tenant string) (int, error) {
	tenant = s.tenant(tenant)
	n, err := s.cache.DeleteTenant(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("invalidating tenant %s: %w", tenant, err)
	}
	slog.Info("invalidated tenant cache", "tenant", tenant, "entries", n)
	return n, nil
}

// FlushCache removes every cached result.
func (s *Service) FlushCache(ctx context.Context) error {
	if err := s.cache.Flush(ctx); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	slog.Info("flushed cache")
	return nil
}

// CacheStats returns cache counters and contents.
func (s *Service) CacheStats(ctx context.Context) (*cache.Stats, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	return stats, nil
}

// Status reports engine session state and cache statistics.
func (s *Service) Status(ctx context.Context) *Status {
	now := s.now()
	st := &Status{
		Initialized:     true,
		EngineConnected: s.engine.Authenticated(),
		UptimeSeconds:   int64(now.Sub(s.startedAt).Seconds()),
		Timestamp:       now,
	}
	stats, err := s.CacheStats(ctx)
	if err != nil {
		st.CacheError = err.Error()
	} else {
		st.Cache = stats
	}
	return st
}

// TestConnection checks that the engine is reachable.
func (s *Service) TestConnection(ctx context.Context) *ConnectionStatus {
	st := &ConnectionStatus{Success: true, Status: ConnectionHealthy}
	if err := s.engine.Ping(ctx); err != nil {
		st.Success = false
		st.Status = ConnectionUnhealthy
		st.Error = err.Error()
	}
	st.Timestamp = s.now()
	return st
}

// CardInfo returns the card's metadata from the engine.
func (s *Service) CardInfo(ctx context.Context, cardID int) (*metabase.CardInfo, error) {
	return s.engine.CardInfo(ctx, cardID)
}

// ErrEmbeddingDisabled is returned by EmbedURL when no embedder is configured.
var ErrEmbeddingDisabled = errors.New("embedding is not configured")

// EmbedURL returns a browser link for the card, locked to the tenant when a
// tenant parameter is configured.
func (s *Service) EmbedURL(cardID int, params metabase.Parameters, tenant string) (*metabase.EmbedLink, error) {
	if s.embedder == nil {
		return nil, ErrEmbeddingDisabled
	}
	if params == nil {
		params = metabase.Parameters{}
	}
	return s.embedder.CardURL(cardID, s.engineParams(params, s.tenant(tenant)))
}
