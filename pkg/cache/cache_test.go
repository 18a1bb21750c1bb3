package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCard      = 7
	testOtherCard = 8
	testTenantA   = "acme"
	testTenantB   = "globex"
)

var testPayload = json.RawMessage(`{"cols":[{"name":"total"}],"rows":[[100]]}`)

// backend is a cache plus a way to move its notion of time forward.
type backend struct {
	cache   Cache
	advance func(time.Duration)
}

func newMemoryBackend(t *testing.T, cfg Config) backend {
	t.Helper()
	c := NewMemoryCache(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return backend{cache: c, advance: func(d time.Duration) { now = now.Add(d) }}
}

func newRedisBackend(t *testing.T, cfg Config) backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCacheFromClient(client, "", cfg)
	now := time.Now()
	c.now = func() time.Time { return now }
	return backend{cache: c, advance: func(d time.Duration) {
		now = now.Add(d)
		mr.FastForward(d)
	}}
}

var backends = map[string]func(*testing.T, Config) backend{
	"memory": newMemoryBackend,
	"redis":  newRedisBackend,
}

func forEachBackend(t *testing.T, cfg Config, fn func(t *testing.T, b backend)) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t, cfg))
		})
	}
}

func TestCache_MissThenHit(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		params := map[string]any{"region": "eu"}

		got, err := b.cache.Get(ctx, testCard, params, testTenantA)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, b.cache.Set(ctx, testCard, params, testTenantA, testPayload, 0))

		got, err = b.cache.Get(ctx, testCard, map[string]any{"region": "eu"}, testTenantA)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, string(testPayload), string(got.Data))
		assert.Equal(t, testCard, got.CardID)
		assert.Equal(t, testTenantA, got.Tenant)
		assert.Equal(t, DefaultTTL, got.ExpiresAt.Sub(got.CachedAt))

		stats, err := b.cache.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.Sets)
		assert.Equal(t, int64(2), stats.TotalRequests)
		assert.InDelta(t, 50.0, stats.HitRate, 0.001)
		assert.Equal(t, 1, stats.CurrentSize)
	})
}

func TestCache_TenantAndParamIsolation(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.cache.Set(ctx, testCard, map[string]any{"a": 1}, testTenantA, testPayload, 0))

		got, err := b.cache.Get(ctx, testCard, map[string]any{"a": 1}, testTenantB)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = b.cache.Get(ctx, testCard, map[string]any{"a": 2}, testTenantA)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = b.cache.Get(ctx, testOtherCard, map[string]any{"a": 1}, testTenantA)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestCache_DefaultTenant(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.cache.Set(ctx, testCard, nil, "", testPayload, 0))

		got, err := b.cache.Get(ctx, testCard, map[string]any{}, DefaultTenant)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, DefaultTenant, got.Tenant)
	})
}

func TestCache_Expiry(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.cache.Set(ctx, testCard, nil, testTenantA, testPayload, time.Second))

		ttl, err := b.cache.TTL(ctx, testCard, nil, testTenantA)
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Second)

		b.advance(1100 * time.Millisecond)

		got, err := b.cache.Get(ctx, testCard, nil, testTenantA)
		require.NoError(t, err)
		assert.Nil(t, got)

		has, err := b.cache.Has(ctx, testCard, nil, testTenantA)
		require.NoError(t, err)
		assert.False(t, has)

		ttl, err = b.cache.TTL(ctx, testCard, nil, testTenantA)
		require.NoError(t, err)
		assert.Zero(t, ttl)
	})
}

func TestCache_UpdateTTL(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.cache.Set(ctx, testCard, nil, testTenantA, testPayload, time.Second))

		ok, err := b.cache.UpdateTTL(ctx, testCard, nil, testTenantA, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		b.advance(2 * time.Second)
		has, err := b.cache.Has(ctx, testCard, nil, testTenantA)
		require.NoError(t, err)
		assert.True(t, has)

		ok, err = b.cache.UpdateTTL(ctx, testOtherCard, nil, testTenantA, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_Invalidation(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		seed := func() {
			require.NoError(t, b.cache.Flush(ctx))
			for _, tenant := range []string{testTenantA, testTenantB} {
				for _, card := range []int{testCard, testOtherCard} {
					require.NoError(t, b.cache.Set(ctx, card, nil, tenant, testPayload, 0))
					require.NoError(t, b.cache.Set(ctx, card, map[string]any{"p": 1}, tenant, testPayload, 0))
				}
			}
		}
		has := func(card int, params map[string]any, tenant string) bool {
			ok, err := b.cache.Has(ctx, card, params, tenant)
			require.NoError(t, err)
			return ok
		}

		seed()
		n, err := b.cache.DeleteCardTenant(ctx, testCard, testTenantA)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.False(t, has(testCard, nil, testTenantA))
		assert.False(t, has(testCard, map[string]any{"p": 1}, testTenantA))
		assert.True(t, has(testCard, nil, testTenantB))
		assert.True(t, has(testOtherCard, nil, testTenantA))

		seed()
		n, err = b.cache.DeleteCard(ctx, testCard)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.False(t, has(testCard, nil, testTenantB))
		assert.True(t, has(testOtherCard, map[string]any{"p": 1}, testTenantB))

		seed()
		n, err = b.cache.DeleteTenant(ctx, testTenantB)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.False(t, has(testOtherCard, nil, testTenantB))
		assert.True(t, has(testOtherCard, nil, testTenantA))

		seed()
		ok, err := b.cache.Delete(ctx, testCard, map[string]any{"p": 1}, testTenantA)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, has(testCard, nil, testTenantA))

		ok, err = b.cache.Delete(ctx, testCard, map[string]any{"p": 1}, testTenantA)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.cache.Flush(ctx))
		stats, err := b.cache.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.CurrentSize)
		assert.Zero(t, stats.Sets)
		assert.Empty(t, stats.Entries)
	})
}

func TestCache_StatsEntries(t *testing.T) {
	forEachBackend(t, Config{TTL: time.Minute, MaxSize: 10}, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.cache.Set(ctx, testCard, nil, testTenantA, testPayload, 0))
		require.NoError(t, b.cache.Set(ctx, testOtherCard, nil, testTenantB, testPayload, 0))

		stats, err := b.cache.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, stats.MaxSize)
		assert.Equal(t, int64(60), stats.TTLSeconds)
		require.Len(t, stats.Entries, 2)
		assert.Equal(t, Key(testCard, nil, testTenantA), stats.Entries[0].Key)
		assert.Equal(t, testTenantB, stats.Entries[1].Tenant)
		assert.Zero(t, stats.HitRate)
	})
}

func TestCache_MaxSizeEvictsSoonestExpiry(t *testing.T) {
	forEachBackend(t, Config{MaxSize: 2}, func(t *testing.T, b backend) {
		ctx := context.Background()
		for i := range 5 {
			ttl := time.Duration(i+1) * time.Minute
			require.NoError(t, b.cache.Set(ctx, testCard, map[string]any{"i": i}, testTenantA, testPayload, ttl))
		}

		stats, err := b.cache.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.MaxSize)
		assert.Equal(t, 2, stats.CurrentSize)

		for i := range 5 {
			has, err := b.cache.Has(ctx, testCard, map[string]any{"i": i}, testTenantA)
			require.NoError(t, err)
			assert.Equal(t, i >= 3, has, "entry %d", i)
		}

		// Rewriting a present key does not evict.
		require.NoError(t, b.cache.Set(ctx, testCard, map[string]any{"i": 4}, testTenantA, testPayload, time.Hour))
		has, err := b.cache.Has(ctx, testCard, map[string]any{"i": 3}, testTenantA)
		require.NoError(t, err)
		assert.True(t, has)
	})
}

func TestCache_StoresParameterCopy(t *testing.T) {
	forEachBackend(t, Config{}, func(t *testing.T, b backend) {
		ctx := context.Background()
		params := map[string]any{"region": "eu"}
		require.NoError(t, b.cache.Set(ctx, testCard, params, testTenantA, testPayload, 0))
		params["region"] = "us"

		got, err := b.cache.Get(ctx, testCard, map[string]any{"region": "eu"}, testTenantA)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "eu", got.Parameters["region"])

		got.Parameters["region"] = "apac"
		again, err := b.cache.Get(ctx, testCard, map[string]any{"region": "eu"}, testTenantA)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, "eu", again.Parameters["region"])
	})
}
