package biproxy

import (
	"context"
	"time"

	"github.com/txn2/bi-proxy/pkg/cache"
	"github.com/txn2/bi-proxy/pkg/metabase"
)

// Source identifies where a result came from.
type Source string

// Result sources.
const (
	SourceCache    Source = "cache"
	SourceMetabase Source = "metabase"
	SourceError    Source = "error"
)

// DefaultMaxConcurrent is the batch chunk size.
const DefaultMaxConcurrent = 5

// Executor runs a card against the engine.
type Executor interface {
	ExecuteCard(ctx context.Context, cardID int, params metabase.Parameters) (*metabase.Result, error)
}

// Engine is the full engine surface the service uses.
type Engine interface {
	Executor
	CardInfo(ctx context.Context, cardID int) (*metabase.CardInfo, error)
	Ping(ctx context.Context) error
	Authenticated() bool
}

var _ Engine = (*metabase.Client)(nil)

// CacheOptions controls cache use for one request.
type CacheOptions struct {
	// UseCache enables both lookup and write-back.
	UseCache bool
	// ForceFresh skips the lookup but still writes the fresh result.
	ForceFresh bool
	// CustomTTL overrides the cache's default TTL when positive.
	CustomTTL time.Duration
}

// DefaultCacheOptions reads and writes the cache with the default TTL.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{UseCache: true}
}

// Metadata describes how a result was produced.
type Metadata struct {
	CardID     int                 `json:"card_id"`
	Tenant     string              `json:"tenant"`
	Parameters metabase.Parameters `json:"parameters"`
	FromCache  bool                `json:"from_cache"`
	Source     Source              `json:"source"`
	CachedAt   *time.Time          `json:"cached_at,omitempty"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	FetchedAt  *time.Time          `json:"fetched_at,omitempty"`
	ErrorAt    *time.Time          `json:"error_at,omitempty"`
	DurationMS int64               `json:"duration_ms"`
}

// Result is the envelope returned for every card request. Exactly one of
// Data and Error is meaningful, chosen by Success.
type Result struct {
	RequestID string            `json:"request_id,omitempty"`
	Success   bool              `json:"success"`
	Data      []metabase.Record `json:"data,omitempty"`
	Columns   []metabase.Column `json:"columns,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  Metadata          `json:"metadata"`

	raw *metabase.Result
	err error
}

// Raw returns the positional result behind a successful envelope.
func (r *Result) Raw() *metabase.Result {
	return r.raw
}

// Err returns the error behind a failed envelope.
func (r *Result) Err() error {
	return r.err
}

// CardRequest is one entry of a batch.
type CardRequest struct {
	RequestID  string
	CardID     int
	Parameters metabase.Parameters
	CustomTTL  time.Duration
}

// BatchOptions controls a batch.
type BatchOptions struct {
	UseCache      bool
	ForceFresh    bool
	MaxConcurrent int
}

// DefaultBatchOptions uses the cache with the service's chunk size.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{UseCache: true}
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	FromCache  int `json:"from_cache"`
}

// BatchResult holds one envelope per request, in request order.
type BatchResult struct {
	Success bool         `json:"success"`
	Results []*Result    `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// Status reports service health.
type Status struct {
	Initialized     bool         `json:"initialized"`
	EngineConnected bool         `json:"metabase_connected"`
	Cache           *cache.Stats `json:"cache,omitempty"`
	CacheError      string       `json:"cache_error,omitempty"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Connection health values.
const (
	ConnectionHealthy   = "healthy"
	ConnectionUnhealthy = "unhealthy"
)

// ConnectionStatus is the outcome of an engine connectivity check.
type ConnectionStatus struct {
	Success   bool      `json:"success"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
