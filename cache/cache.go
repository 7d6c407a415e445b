package cache

import (
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

// Cache is an in-process read cache for hot lookups on the resolution path
// (shortlink by key, profile by API key). Entries expire after the configured
// TTL so peers converge even when they miss an invalidation.
type Cache struct {
	client *ristretto.Cache
	ttl    time.Duration
}

// New creates a new cache instance with the given configuration
func New(cfg config.CacheConfig) (*Cache, error) {
	maxCost := int64(cfg.MaxSizeMB) * 1024 * 1024

	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.CounterSize),
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("max_size_mb", cfg.MaxSizeMB).
		Int("ttl_seconds", cfg.TTLSeconds).
		Msg("Cache initialized")

	return &Cache{
		client: client,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
	}, nil
}

// Get returns (value, true) on a hit.
func (c *Cache) Get(key string) (interface{}, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	return c.client.Get(key)
}

// Set stores a value with the configured TTL. Ristretto admits writes
// asynchronously, so a Get right after Set may still miss.
func (c *Cache) Set(key string, value interface{}, cost int64) bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.client.SetWithTTL(key, value, cost, c.ttl)
}

// Delete removes keys from the cache
func (c *Cache) Delete(keys ...string) {
	if c == nil || c.client == nil {
		return
	}
	for _, key := range keys {
		c.client.Del(key)
	}
}

// Wait blocks until pending writes are applied.
func (c *Cache) Wait() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Wait()
}

// Close cleanly shuts down the cache
func (c *Cache) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
		log.Info().Msg("Cache closed")
	}
}

type MetricsSnapshot struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	KeysAdded   uint64  `json:"keys_added"`
	KeysEvicted uint64  `json:"keys_evicted"`
	HitRatio    float64 `json:"hit_ratio"`
	TTLSeconds  int     `json:"ttl_seconds"`
}

// GetMetricsSnapshot returns current cache metrics as a snapshot
func (c *Cache) GetMetricsSnapshot() MetricsSnapshot {
	if c == nil || c.client == nil || c.client.Metrics == nil {
		return MetricsSnapshot{}
	}

	m := c.client.Metrics
	return MetricsSnapshot{
		Hits:        m.Hits(),
		Misses:      m.Misses(),
		KeysAdded:   m.KeysAdded(),
		KeysEvicted: m.KeysEvicted(),
		HitRatio:    m.Ratio(),
		TTLSeconds:  int(c.ttl.Seconds()),
	}
}
