package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/product"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps values in a map and ignores expirations.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func sampleProducts() []*product.Product {
	return []*product.Product{
		{ID: "a", Name: "Earbuds", Price: decimal.RequireFromString("129.99"), Tags: []string{"audio"}},
		{ID: "b", Name: "Yoga Mat", Price: decimal.RequireFromString("39.99"), Tags: []string{}},
	}
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	c := NewRedis(f, 30*time.Second)

	_, gen, ok := c.GetList(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, "0", gen)

	c.SetList(ctx, "k", gen, sampleProducts())
	got, _, ok := c.GetList(ctx, "k")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "Earbuds", got[0].Name)
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("39.99")))
	assert.Equal(t, 30*time.Second, f.ttls["catalog:list:0:k"])
}

func TestRedis_InvalidateBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	c := NewRedis(f, time.Minute)

	c.SetList(ctx, "k", "0", sampleProducts())
	c.Invalidate(ctx)

	_, gen, ok := c.GetList(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, "1", gen)
	assert.Equal(t, "1", f.data[generationKey])

	c.SetList(ctx, "k", gen, sampleProducts()[:1])
	got, _, ok := c.GetList(ctx, "k")
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestRedis_InvalidatedDuringFill(t *testing.T) {
	ctx := context.Background()
	c := NewRedis(newFakeRedis(), time.Minute)

	_, gen, ok := c.GetList(ctx, "k")
	require.False(t, ok)

	// The listing was read before this invalidation and must not be served after it.
	c.Invalidate(ctx)
	c.SetList(ctx, "k", gen, sampleProducts())

	_, _, ok = c.GetList(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_Unavailable(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	f.err = errors.New("connection refused")
	c := NewRedis(f, time.Minute)

	_, gen, ok := c.GetList(ctx, "k")
	assert.False(t, ok)
	assert.Empty(t, gen)
	assert.NotPanics(t, func() {
		c.SetList(ctx, "k", gen, sampleProducts())
		c.SetList(ctx, "k", "0", sampleProducts())
		c.Invalidate(ctx)
	})
}

func TestRedis_CorruptEntry(t *testing.T) {
	f := newFakeRedis()
	f.data["catalog:list:0:k"] = "{not json"
	_, gen, ok := NewRedis(f, time.Minute).GetList(context.Background(), "k")
	assert.False(t, ok)
	assert.Equal(t, "0", gen)
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(8, time.Minute)

	_, gen, ok := c.GetList(ctx, "k")
	require.False(t, ok)
	c.SetList(ctx, "k", gen, sampleProducts())
	got, _, ok := c.GetList(ctx, "k")
	require.True(t, ok)
	assert.Len(t, got, 2)

	// Callers get copies.
	got[0].Name = "changed"
	again, _, _ := c.GetList(ctx, "k")
	assert.Equal(t, "Earbuds", again[0].Name)

	c.Invalidate(ctx)
	_, _, ok = c.GetList(ctx, "k")
	assert.False(t, ok)
}

func TestLocal_InvalidatedDuringFill(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(8, time.Minute)

	_, gen, _ := c.GetList(ctx, "k")
	c.Invalidate(ctx)
	c.SetList(ctx, "k", gen, sampleProducts())

	_, fresh, ok := c.GetList(ctx, "k")
	assert.False(t, ok)
	assert.NotEqual(t, gen, fresh)

	c.SetList(ctx, "k", fresh, sampleProducts()[:1])
	got, _, ok := c.GetList(ctx, "k")
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestLocal_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(8, 20*time.Millisecond)
	_, gen, _ := c.GetList(ctx, "k")
	c.SetList(ctx, "k", gen, sampleProducts())

	assert.Eventually(t, func() bool {
		_, _, ok := c.GetList(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
