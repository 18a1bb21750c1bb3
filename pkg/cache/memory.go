package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements Cache in process memory. When full, expired
// entries are purged first and then the entry closest to expiry is evicted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	cfg     Config
	now     func() time.Time
	stats   counters

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(cfg Config) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*Entry),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

func (c *MemoryCache) lookup(key string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil
	}
	return e
}

// Get returns the live entry for the key, or nil, nil on a miss.
func (c *MemoryCache) Get(_ context.Context, cardID int, params map[string]any, tenant string) (*Entry, error) {
	e := c.lookup(Key(cardID, params, tenant))
	if e == nil {
		c.stats.misses.Add(1)
		return nil, nil //nolint:nilnil // Cache interface specifies nil,nil for a miss
	}
	c.stats.hits.Add(1)
	out := *e
	out.Parameters = maps.Clone(e.Parameters)
	return &out, nil
}

// Set stores data under the key for ttl.
func (c *MemoryCache) Set(_ context.Context, cardID int, params map[string]any, tenant string, data json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	tenant = NormalizeTenant(tenant)
	key := Key(cardID, params, tenant)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.purgeExpiredLocked(now)
		for len(c.entries) >= c.cfg.MaxSize {
			c.evictLocked()
		}
	}

	c.entries[key] = &Entry{
		Key:        key,
		CardID:     cardID,
		Tenant:     tenant,
		Parameters: maps.Clone(params),
		Data:       data,
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	c.stats.sets.Add(1)
	return nil
}

// Has reports whether a live entry exists.
func (c *MemoryCache) Has(_ context.Context, cardID int, params map[string]any, tenant string) (bool, error) {
	return c.lookup(Key(cardID, params, tenant)) != nil, nil
}

// TTL returns the remaining lifetime of the entry, or zero if absent.
func (c *MemoryCache) TTL(_ context.Context, cardID int, params map[string]any, tenant string) (time.Duration, error) {
	e := c.lookup(Key(cardID, params, tenant))
	if e == nil {
		return 0, nil
	}
	return e.ExpiresAt.Sub(c.now()), nil
}

// UpdateTTL resets the entry's lifetime to ttl from now.
func (c *MemoryCache) UpdateTTL(_ context.Context, cardID int, params map[string]any, tenant string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	key := Key(cardID, params, tenant)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		return false, nil
	}
	updated := *e
	updated.ExpiresAt = now.Add(ttl)
	c.entries[key] = &updated
	return true, nil
}

// Delete removes one entry.
func (c *MemoryCache) Delete(_ context.Context, cardID int, params map[string]any, tenant string) (bool, error) {
	key := Key(cardID, params, tenant)
	n := c.deleteMatching(func(e *Entry) bool { return e.Key == key })
	return n > 0, nil
}

// DeleteCard removes every entry for the card.
func (c *MemoryCache) DeleteCard(_ context.Context, cardID int) (int, error) {
	return c.deleteMatching(func(e *Entry) bool { return e.CardID == cardID }), nil
}

// DeleteCardTenant removes every parameter variant of the card for the tenant.
func (c *MemoryCache) DeleteCardTenant(_ context.Context, cardID int, tenant string) (int, error) {
	tenant = NormalizeTenant(tenant)
	return c.deleteMatching(func(e *Entry) bool { return e.CardID == cardID && e.Tenant == tenant }), nil
}

// DeleteTenant removes every entry for the tenant.
func (c *MemoryCache) DeleteTenant(_ context.Context, tenant string) (int, error) {
	tenant = NormalizeTenant(tenant)
	return c.deleteMatching(func(e *Entry) bool { return e.Tenant == tenant }), nil
}

// deleteMatching removes matching entries and returns how many were live.
func (c *MemoryCache) deleteMatching(match func(*Entry) bool) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !match(e) {
			continue
		}
		if !e.expired(now) {
			removed++
		}
		delete(c.entries, key)
	}
	c.stats.deletes.Add(int64(removed))
	return removed
}

// Flush removes every entry and resets the counters.
func (c *MemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	c.stats.reset()
	return nil
}

// Stats returns counters and the live entries ordered by key.
func (c *MemoryCache) Stats(_ context.Context) (*Stats, error) {
	now := c.now()
	s := &Stats{
		Backend:    "memory",
		MaxSize:    c.cfg.MaxSize,
		TTLSeconds: int64(c.cfg.TTL.Seconds()),
		Entries:    []EntryInfo{},
	}
	c.stats.fill(s)

	c.mu.RLock()
	for _, e := range c.entries {
		if e.expired(now) {
			continue
		}
		s.Entries = append(s.Entries, entryInfo(e, now))
	}
	c.mu.RUnlock()

	slices.SortFunc(s.Entries, func(a, b EntryInfo) int { return strings.Compare(a.Key, b.Key) })
	s.CurrentSize = len(s.Entries)
	return s, nil
}

// Cleanup removes expired entries and returns how many were removed.
func (c *MemoryCache) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(now)
}

func (c *MemoryCache) purgeExpiredLocked(now time.Time) int {
	n := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *MemoryCache) evictLocked() {
	var victim *Entry
	for _, e := range c.entries {
		if victim == nil ||
			e.ExpiresAt.Before(victim.ExpiresAt) ||
			(e.ExpiresAt.Equal(victim.ExpiresAt) && e.CachedAt.Before(victim.CachedAt)) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(c.entries, victim.Key)
	c.stats.deletes.Add(1)
	slog.Debug("evicted cache entry", "key", victim.Key)
}

// StartCleanupRoutine starts a background goroutine that purges expired
// entries at the configured interval.
func (c *MemoryCache) StartCleanupRoutine() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Cleanup(); n > 0 {
					slog.Debug("purged expired cache entries", "count", n)
				}
			}
		}
	}()
}

// Close stops the cleanup routine if running.
func (c *MemoryCache) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	return nil
}
