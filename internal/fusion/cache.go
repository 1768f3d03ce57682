package fusion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/redis"
)

// Cached is one stored fusion result
type Cached struct {
	Data   contracts.FieldBag      `json:"data"`
	Report contracts.QualityReport `json:"report"`
}

// Cache stores fusion results per symbol, checklist and time bucket.
// A run that stopped early against one checklist is never served to another.
type Cache interface {
	Get(ctx context.Context, symbol, checklist string, at time.Time) (*Cached, bool)
	Set(ctx context.Context, symbol, checklist string, at time.Time, entry *Cached)
}

// Checklist is a short digest of the required-field set, independent of order
func Checklist(required []string) string {
	fields := make([]string, 0, len(required))
	seen := make(map[string]bool, len(required))
	for _, f := range required {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	sum := sha256.Sum256([]byte(strings.Join(fields, ",")))
	return hex.EncodeToString(sum[:6])
}

// bucket truncates at to the TTL so one bucket spans one operational cycle
func bucket(at time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return at.Unix()
	}
	return at.Truncate(ttl).Unix()
}

// MemoryCache is the in-process fallback used when Redis is disabled
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   *Cached
	expires time.Time
}

// NewMemoryCache creates an in-process cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, symbol, checklist string, at time.Time) (*Cached, bool) {
	key := redis.FusionKey(symbol, checklist, bucket(at, c.ttl))

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if at.After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, symbol, checklist string, at time.Time, entry *Cached) {
	key := redis.FusionKey(symbol, checklist, bucket(at, c.ttl))

	c.mu.Lock()
	defer c.mu.Unlock()

	// 만료된 항목 정리
	for k, e := range c.entries {
		if at.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{value: entry, expires: at.Add(c.ttl)}
}

// Len returns the number of stored entries
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache stores results in Redis under fusion:{SYMBOL}:{checklist}:{bucket}
type RedisCache struct {
	cache *redis.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		cache: redis.NewCache(client, "stockfusion"),
		ttl:   ttl,
		log:   log.Module("fusion_cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, symbol, checklist string, at time.Time) (*Cached, bool) {
	var entry Cached
	found, err := c.cache.Get(ctx, redis.FusionKey(symbol, checklist, bucket(at, c.ttl)), &entry)
	if err != nil {
		c.log.WithError(err).WithField("symbol", symbol).Warn("Fusion cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	entry.Data = restoreSources(entry.Data)
	return &entry, true
}

func (c *RedisCache) Set(ctx context.Context, symbol, checklist string, at time.Time, entry *Cached) {
	if err := c.cache.Set(ctx, redis.FusionKey(symbol, checklist, bucket(at, c.ttl)), entry, c.ttl); err != nil {
		c.log.WithError(err).WithField("symbol", symbol).Warn("Fusion cache write failed")
	}
}

// restoreSources turns the JSON-decoded _sources back into []string
func restoreSources(bag contracts.FieldBag) contracts.FieldBag {
	raw, ok := bag[contracts.KeySources].([]interface{})
	if !ok {
		return bag
	}
	sources := make([]string, 0, len(raw))
	for _, s := range raw {
		if str, ok := s.(string); ok {
			sources = append(sources, strings.TrimSpace(str))
		}
	}
	bag[contracts.KeySources] = sources
	return bag
}
