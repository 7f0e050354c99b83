package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"storefront/internal/product"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Local is an in-process LRU used when no Redis is configured.
type Local struct {
	mu  sync.Mutex
	gen uint64
	lru *expirable.LRU[string, []*product.Product]
}

var _ product.ListCache = (*Local)(nil)

func NewLocal(size int, ttl time.Duration) *Local {
	return &Local{lru: expirable.NewLRU[string, []*product.Product](size, nil, ttl)}
}

func (c *Local) GetList(_ context.Context, key string) ([]*product.Product, string, bool) {
	c.mu.Lock()
	gen := strconv.FormatUint(c.gen, 10)
	cached, ok := c.lru.Get(key)
	c.mu.Unlock()
	if !ok {
		return nil, gen, false
	}
	return cloneAll(cached), gen, true
}

// SetList is a no-op when the cache was invalidated after gen was handed out.
func (c *Local) SetList(_ context.Context, key, gen string, products []*product.Product) {
	snapshot := cloneAll(products)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != strconv.FormatUint(c.gen, 10) {
		return
	}
	c.lru.Add(key, snapshot)
}

func (c *Local) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

func cloneAll(ps []*product.Product) []*product.Product {
	out := make([]*product.Product, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}
