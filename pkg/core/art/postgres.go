package art

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Migrate applies the art cache schema to the database behind pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("art: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("art: migrate: %w", err)
	}
	return nil
}

type postgresCache struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func (c *postgresCache) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		uri       string
		createdAt time.Time
	)
	err := c.pool.QueryRow(ctx,
		`SELECT data_uri, created_at FROM project_art WHERE key = $1`, key,
	).Scan(&uri, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if c.ttl > 0 && c.now().Sub(createdAt) >= c.ttl {
		return "", false, nil
	}
	return uri, true, nil
}

func (c *postgresCache) Put(ctx context.Context, key, dataURI string) error {
	_, err := c.pool.Exec(ctx, `
INSERT INTO project_art (key, data_uri, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET data_uri = EXCLUDED.data_uri, created_at = EXCLUDED.created_at`,
		key, dataURI, c.now().UTC())
	return err
}

func (c *postgresCache) Close() error {
	c.pool.Close()
	return nil
}

// CacheConfig selects and addresses a cache backend from configuration.
type CacheConfig struct {
	Type       CacheType
	URL        string
	TTL        time.Duration
	MaxEntries int
}

// Open connects the configured backend. Postgres schemas are migrated before
// the cache is returned.
func Open(ctx context.Context, cfg CacheConfig) (Cache, error) {
	switch cfg.Type {
	case CacheTypeRedis:
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("art: redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("art: redis ping: %w", err)
		}
		return NewCache(CacheTypeRedis, WithRedisClient(client), WithTTL(cfg.TTL))
	case CacheTypePostgres:
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("art: postgres pool: %w", err)
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewCache(CacheTypePostgres, WithPostgresPool(pool), WithTTL(cfg.TTL))
	default:
		return NewCache(cfg.Type, WithTTL(cfg.TTL), WithMaxEntries(cfg.MaxEntries))
	}
}
