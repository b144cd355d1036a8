package art

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

// CacheType selects a cache backend.
type CacheType string

const (
	CacheTypeNone     CacheType = "none"
	CacheTypeMemory   CacheType = "memory"
	CacheTypeRedis    CacheType = "redis"
	CacheTypePostgres CacheType = "postgres"

	defaultMaxEntries = 64
	keyPrefix         = "art:"
)

var (
	ErrInvalidCacheType   = errors.New("art: invalid cache type")
	ErrInvalidCacheConfig = errors.New("art: invalid cache config")
)

// Cache stores generated data URIs. A miss reports ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, dataURI string) error
	Close() error
}

// Key derives the cache key for a model and prompt.
func Key(model, prompt string) string {
	sum := blake3.Sum256([]byte(model + "\x00" + prompt))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// CacheOption configures NewCache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl          time.Duration
	maxEntries   int
	redisClient  *redis.Client
	postgresPool *pgxpool.Pool
	now          func() time.Time
}

// WithTTL bounds entry lifetime. Zero keeps entries until evicted.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithMaxEntries bounds the memory cache.
func WithMaxEntries(n int) CacheOption {
	return func(c *cacheConfig) { c.maxEntries = n }
}

func WithRedisClient(client *redis.Client) CacheOption {
	return func(c *cacheConfig) { c.redisClient = client }
}

// WithPostgresPool sets the pool of the postgres backend. The schema must
// already be migrated; see Migrate.
func WithPostgresPool(pool *pgxpool.Pool) CacheOption {
	return func(c *cacheConfig) { c.postgresPool = pool }
}

func withClock(now func() time.Time) CacheOption {
	return func(c *cacheConfig) { c.now = now }
}

// NewCache builds a cache of the given type.
func NewCache(t CacheType, opts ...CacheOption) (Cache, error) {
	cfg := &cacheConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	switch t {
	case CacheTypeNone, "":
		return noneCache{}, nil
	case CacheTypeMemory:
		limit := cfg.maxEntries
		if limit <= 0 {
			limit = defaultMaxEntries
		}
		return &memoryCache{
			max:     limit,
			ttl:     cfg.ttl,
			now:     cfg.now,
			entries: make(map[string]memoryEntry),
		}, nil
	case CacheTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidCacheConfig
		}
		return &redisCache{client: cfg.redisClient, ttl: cfg.ttl}, nil
	case CacheTypePostgres:
		if cfg.postgresPool == nil {
			return nil, ErrInvalidCacheConfig
		}
		return &postgresCache{pool: cfg.postgresPool, ttl: cfg.ttl, now: cfg.now}, nil
	default:
		return nil, ErrInvalidCacheType
	}
}

type noneCache struct{}

func (noneCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (noneCache) Put(context.Context, string, string) error         { return nil }
func (noneCache) Close() error                                      { return nil }

type memoryEntry struct {
	value   string
	expires time.Time
}

// memoryCache evicts the oldest insertion once max entries are held.
type memoryCache struct {
	max int
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	order   []string
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *memoryCache) Put(_ context.Context, key, dataURI string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return nil
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	for len(c.order) >= c.max {
		c.remove(c.order[0])
	}
	c.entries[key] = memoryEntry{value: dataURI, expires: expires}
	c.order = append(c.order, key)
	return nil
}

func (c *memoryCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.order = nil
	return nil
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisCache) Put(ctx context.Context, key, dataURI string) error {
	return c.client.Set(ctx, key, dataURI, c.ttl).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
