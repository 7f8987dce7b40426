package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

type backend interface {
	ListRows(ctx context.Context, userID string) ([]schema.Row, error)
	InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error)
	UpdateRow(ctx context.Context, userID string, row schema.Row) error
	DeleteRow(ctx context.Context, userID, id string) error
}

// Cache wraps a row backend with Redis-backed caching for list reads. Every
// mutation evicts the user's cached rows so the next list goes to the backing
// store.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListRows(ctx context.Context, userID string) ([]schema.Row, error) {
	if rows, ok := c.loadFromCache(ctx, userID); ok {
		return rows, nil
	}

	rows, err := c.base.ListRows(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, userID, rows)
	return rows, nil
}

func (c *Cache) InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error) {
	stored, err := c.base.InsertRow(ctx, userID, row)
	if err != nil {
		return schema.Row{}, err
	}
	c.evict(ctx, userID)
	return stored, nil
}

func (c *Cache) UpdateRow(ctx context.Context, userID string, row schema.Row) error {
	if err := c.base.UpdateRow(ctx, userID, row); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) DeleteRow(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteRow(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, userID string) ([]schema.Row, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, rowsCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, rowsCacheKey(userID)).Err()
		}
		return nil, false
	}
	var rows []schema.Row
	if err := sonic.Unmarshal(data, &rows); err != nil {
		_ = c.redis.Del(ctx, rowsCacheKey(userID)).Err()
		return nil, false
	}
	return rows, true
}

func (c *Cache) store(ctx context.Context, userID string, rows []schema.Row) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(rows)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, rowsCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, rowsCacheKey(userID)).Result()
}

func rowsCacheKey(userID string) string {
	return "rows:" + userID
}
