package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "bi:"
	scanBatch        = 200
)

// RedisCache implements Cache on Redis so several proxy instances share
// results. Expiry is delegated to Redis key TTLs; a sorted set of entry
// expiries drives index pruning and max-size eviction. Eviction runs per
// write and is not atomic across instances. Hit and miss counters are local
// to the process.
type RedisCache struct {
	client     goredis.UniversalClient
	prefix     string
	cfg        Config
	now        func() time.Time
	stats      counters
	ownsClient bool
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to the Redis URL, verifies it with a PING and
// returns a cache that closes the client on Close.
func NewRedisCache(ctx context.Context, url, prefix string, cfg Config) (*RedisCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	c := NewRedisCacheFromClient(client, prefix, cfg)
	c.ownsClient = true
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client. Close leaves the client open.
func NewRedisCacheFromClient(client goredis.UniversalClient, prefix string, cfg Config) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

func (c *RedisCache) entryKey(key string) string {
	return c.prefix + key
}

func (c *RedisCache) cardIndex(cardID int) string {
	return c.prefix + "idx:card:" + strconv.Itoa(cardID)
}

func (c *RedisCache) tenantIndex(tenant string) string {
	return c.prefix + "idx:tenant:" + NormalizeTenant(tenant)
}

func (c *RedisCache) expiryIndex() string {
	return c.prefix + "idx:expiry"
}

func (c *RedisCache) load(ctx context.Context, key string) (*Entry, error) {
	data, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // absent key
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	if e.expired(c.now()) {
		return nil, nil //nolint:nilnil // expired entry
	}
	return &e, nil
}

// Get returns the live entry for the key, or nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, cardID int, params map[string]any, tenant string) (*Entry, error) {
	e, err := c.load(ctx, Key(cardID, params, tenant))
	if err != nil {
		return nil, err
	}
	if e == nil {
		c.stats.misses.Add(1)
		return nil, nil //nolint:nilnil // Cache interface specifies nil,nil for a miss
	}
	c.stats.hits.Add(1)
	return e, nil
}

// Set stores the entry with a Redis TTL and records it in the card and
// tenant indexes.
func (c *RedisCache) Set(ctx context.Context, cardID int, params map[string]any, tenant string, data json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	tenant = NormalizeTenant(tenant)
	now := c.now()
	e := &Entry{
		Key:        Key(cardID, params, tenant),
		CardID:     cardID,
		Tenant:     tenant,
		Parameters: maps.Clone(params),
		Data:       data,
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := c.makeRoom(ctx, c.entryKey(e.Key)); err != nil {
		return err
	}
	if err := c.store(ctx, e, ttl); err != nil {
		return err
	}
	c.stats.sets.Add(1)
	return nil
}

// makeRoom prunes expired index members and, when member is new and the
// cache is full, evicts the entries closest to expiry.
func (c *RedisCache) makeRoom(ctx context.Context, member string) error {
	if _, err := c.Cleanup(ctx); err != nil {
		return err
	}
	err := c.client.ZScore(ctx, c.expiryIndex(), member).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("reading expiry index: %w", err)
	}

	size, err := c.client.ZCard(ctx, c.expiryIndex()).Result()
	if err != nil {
		return fmt.Errorf("reading cache size: %w", err)
	}
	over := size - int64(c.cfg.MaxSize) + 1
	if over <= 0 {
		return nil
	}
	victims, err := c.client.ZRange(ctx, c.expiryIndex(), 0, over-1).Result()
	if err != nil {
		return fmt.Errorf("reading expiry index: %w", err)
	}
	n, err := c.remove(ctx, victims)
	if err != nil {
		return err
	}
	slog.Debug("evicted cache entries", "count", n)
	return nil
}

// Cleanup drops index members whose entries have expired and returns how
// many were pruned.
func (c *RedisCache) Cleanup(ctx context.Context) (int, error) {
	upper := strconv.FormatInt(c.now().UnixMilli(), 10)
	expired, err := c.client.ZRangeByScore(ctx, c.expiryIndex(), &goredis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading expiry index: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if _, err := c.remove(ctx, expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (c *RedisCache) store(ctx context.Context, e *Entry, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	member := c.entryKey(e.Key)
	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, member, payload, ttl)
		pipe.SAdd(ctx, c.cardIndex(e.CardID), member)
		pipe.SAdd(ctx, c.tenantIndex(e.Tenant), member)
		pipe.ZAdd(ctx, c.expiryIndex(), goredis.Z{Score: float64(e.ExpiresAt.UnixMilli()), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Has reports whether a live entry exists.
func (c *RedisCache) Has(ctx context.Context, cardID int, params map[string]any, tenant string) (bool, error) {
	n, err := c.client.Exists(ctx, c.entryKey(Key(cardID, params, tenant))).Result()
	if err != nil {
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of the entry, or zero if absent.
func (c *RedisCache) TTL(ctx context.Context, cardID int, params map[string]any, tenant string) (time.Duration, error) {
	d, err := c.client.PTTL(ctx, c.entryKey(Key(cardID, params, tenant))).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache ttl: %w", err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// UpdateTTL rewrites the entry with a new lifetime of ttl from now.
func (c *RedisCache) UpdateTTL(ctx context.Context, cardID int, params map[string]any, tenant string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	e, err := c.load(ctx, Key(cardID, params, tenant))
	if err != nil || e == nil {
		return false, err
	}
	e.ExpiresAt = c.now().Add(ttl)
	if err := c.store(ctx, e, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes one entry.
func (c *RedisCache) Delete(ctx context.Context, cardID int, params map[string]any, tenant string) (bool, error) {
	n, err := c.remove(ctx, []string{c.entryKey(Key(cardID, params, tenant))})
	return n > 0, err
}

// DeleteCard removes every entry for the card.
func (c *RedisCache) DeleteCard(ctx context.Context, cardID int) (int, error) {
	members, err := c.client.SMembers(ctx, c.cardIndex(cardID)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading card index: %w", err)
	}
	return c.remove(ctx, members)
}

// DeleteCardTenant removes every parameter variant of the card for the tenant.
func (c *RedisCache) DeleteCardTenant(ctx context.Context, cardID int, tenant string) (int, error) {
	members, err := c.client.SInter(ctx, c.cardIndex(cardID), c.tenantIndex(tenant)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache indexes: %w", err)
	}
	return c.remove(ctx, members)
}

// DeleteTenant removes every entry for the tenant.
func (c *RedisCache) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	members, err := c.client.SMembers(ctx, c.tenantIndex(tenant)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading tenant index: %w", err)
	}
	return c.remove(ctx, members)
}

// remove deletes the entry keys and their index memberships, returning how
// many entries still existed.
func (c *RedisCache) remove(ctx context.Context, members []string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	var del *goredis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, members...)
		for _, m := range members {
			if cardID, tenant, ok := parseKey(strings.TrimPrefix(m, c.prefix)); ok {
				pipe.SRem(ctx, c.cardIndex(cardID), m)
				pipe.SRem(ctx, c.tenantIndex(tenant), m)
			}
			pipe.ZRem(ctx, c.expiryIndex(), m)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting cache entries: %w", err)
	}
	n := del.Val()
	c.stats.deletes.Add(n)
	return int(n), nil
}

// Flush removes every key under the prefix and resets the counters.
func (c *RedisCache) Flush(ctx context.Context) error {
	keys, err := c.scan(ctx, c.prefix+"*")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("flushing cache: %w", err)
		}
	}
	c.stats.reset()
	return nil
}

// Stats returns counters and the live entries ordered by key.
func (c *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	if _, err := c.Cleanup(ctx); err != nil {
		return nil, err
	}
	keys, err := c.scan(ctx, c.prefix+"card:*")
	if err != nil {
		return nil, err
	}

	now := c.now()
	s := &Stats{
		Backend:    "redis",
		MaxSize:    c.cfg.MaxSize,
		TTLSeconds: int64(c.cfg.TTL.Seconds()),
		Entries:    []EntryInfo{},
	}
	c.stats.fill(s)

	if len(keys) > 0 {
		values, err := c.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("reading cache entries: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var e Entry
			if json.Unmarshal([]byte(raw), &e) != nil || e.expired(now) {
				continue
			}
			s.Entries = append(s.Entries, entryInfo(&e, now))
		}
	}

	slices.SortFunc(s.Entries, func(a, b EntryInfo) int { return strings.Compare(a.Key, b.Key) })
	s.CurrentSize = len(s.Entries)
	return s, nil
}

func (c *RedisCache) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning cache keys: %w", err)
	}
	return keys, nil
}

// Close closes the client when the cache created it.
func (c *RedisCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}
