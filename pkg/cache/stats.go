package cache

import (
	"math"
	"sync/atomic"
	"time"
)

// Stats reports cache counters and current contents.
type Stats struct {
	Backend       string      `json:"backend"`
	Hits          int64       `json:"hits"`
	Misses        int64       `json:"misses"`
	Sets          int64       `json:"sets"`
	Deletes       int64       `json:"deletes"`
	TotalRequests int64       `json:"total_requests"`
	HitRate       float64     `json:"hit_rate"`
	CurrentSize   int         `json:"current_size"`
	MaxSize       int         `json:"max_size"`
	TTLSeconds    int64       `json:"ttl_seconds"`
	Entries       []EntryInfo `json:"entries"`
}

// EntryInfo describes one live entry.
type EntryInfo struct {
	Key          string    `json:"key"`
	CardID       int       `json:"card_id"`
	Tenant       string    `json:"tenant"`
	CachedAt     time.Time `json:"cached_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	TTLRemaining int64     `json:"ttl_remaining_seconds"`
}

type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func (c *counters) fill(s *Stats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Sets = c.sets.Load()
	s.Deletes = c.deletes.Load()
	s.TotalRequests = s.Hits + s.Misses
	if s.TotalRequests > 0 {
		s.HitRate = math.Round(float64(s.Hits)/float64(s.TotalRequests)*10000) / 100
	}
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
}

func entryInfo(e *Entry, now time.Time) EntryInfo {
	return EntryInfo{
		Key:          e.Key,
		CardID:       e.CardID,
		Tenant:       e.Tenant,
		CachedAt:     e.CachedAt,
		ExpiresAt:    e.ExpiresAt,
		TTLRemaining: int64(e.ExpiresAt.Sub(now).Seconds()),
	}
}
