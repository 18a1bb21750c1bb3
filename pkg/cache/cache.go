// Package cache stores card query results scoped by card, tenant and
// parameter set. Entries expire after a TTL and are never returned once
// expired.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTenant          = "default"
	DefaultTTL             = 5 * time.Minute
	DefaultMaxSize         = 100
	DefaultCleanupInterval = time.Minute
)

// Entry is a cached card result.
type Entry struct {
	Key        string          `json:"key"`
	CardID     int             `json:"card_id"`
	Tenant     string          `json:"tenant"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Data       json.RawMessage `json:"data"`
	CachedAt   time.Time       `json:"cached_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Config configures a cache backend.
type Config struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// Cache is a tenant-scoped result store. Get returns nil, nil on a miss.
// A zero ttl passed to Set or UpdateTTL means the configured default.
type Cache interface {
	Get(ctx context.Context, cardID int, params map[string]any, tenant string) (*Entry, error)
	Set(ctx context.Context, cardID int, params map[string]any, tenant string, data json.RawMessage, ttl time.Duration) error
	Has(ctx context.Context, cardID int, params map[string]any, tenant string) (bool, error)
	TTL(ctx context.Context, cardID int, params map[string]any, tenant string) (time.Duration, error)
	UpdateTTL(ctx context.Context, cardID int, params map[string]any, tenant string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, cardID int, params map[string]any, tenant string) (bool, error)

	// DeleteCard removes every entry for the card across tenants.
	DeleteCard(ctx context.Context, cardID int) (int, error)
	// DeleteCardTenant removes every parameter variant of the card for one tenant.
	DeleteCardTenant(ctx context.Context, cardID int, tenant string) (int, error)
	// DeleteTenant removes every entry for the tenant.
	DeleteTenant(ctx context.Context, tenant string) (int, error)
	Flush(ctx context.Context) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
