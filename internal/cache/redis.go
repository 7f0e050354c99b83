// Package cache holds read-through caches for catalog listings. Entries are
// keyed by a generation number, so invalidation is a single INCR and stale
// entries simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"storefront/internal/logger"
	"storefront/internal/product"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	generationKey = "catalog:generation"
	listKeyPrefix = "catalog:list:"
)

// redisClient is the part of redis.Cmdable the catalog cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type Redis struct {
	client redisClient
	ttl    time.Duration
}

var _ product.ListCache = (*Redis)(nil)

func NewRedis(client redisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Connect dials addr and verifies the connection.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Redis) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func listKeyFor(gen, listKey string) string {
	return listKeyPrefix + gen + ":" + listKey
}

// GetList looks the listing up under the current generation. On a miss the
// generation is still returned so SetList can write under the same one; a
// listing stored under a generation that has since been bumped is never read.
func (c *Redis) GetList(ctx context.Context, listKey string) ([]*product.Product, string, bool) {
	log := logger.FromCtx(ctx)

	gen, err := c.generation(ctx)
	if err != nil {
		log.Warn("catalog cache unavailable", zap.Error(err))
		return nil, "", false
	}
	key := listKeyFor(gen, listKey)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("catalog cache read failed", zap.Error(err))
		}
		return nil, gen, false
	}

	var products []*product.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		log.Warn("catalog cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, gen, false
	}
	return products, gen, true
}

func (c *Redis) SetList(ctx context.Context, listKey, gen string, products []*product.Product) {
	if gen == "" {
		return
	}
	log := logger.FromCtx(ctx)

	raw, err := json.Marshal(products)
	if err != nil {
		log.Warn("failed to encode catalog listing", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, listKeyFor(gen, listKey), raw, c.ttl).Err(); err != nil {
		log.Warn("catalog cache write failed", zap.Error(err))
	}
}

func (c *Redis) Invalidate(ctx context.Context) {
	gen, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		logger.FromCtx(ctx).Warn("catalog cache invalidation failed", zap.Error(err))
		return
	}
	logger.FromCtx(ctx).Debug("catalog cache invalidated", zap.String("generation", strconv.FormatInt(gen, 10)))
}
