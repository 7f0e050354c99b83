package main

import (
	"context"
	"testing"

	"storefront/internal/product"
	"storefront/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	catalog, err := loadCatalog(catalogJSON)
	require.NoError(t, err)
	require.Len(t, catalog, 15)

	for _, in := range catalog {
		_, ok := product.ParseCategory(in.Category)
		assert.True(t, ok, in.Category)
		assert.True(t, in.Price.IsPositive(), in.Name)
	}

	_, err = loadCatalog([]byte("{"))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	catalog, err := loadCatalog(catalogJSON)
	require.NoError(t, err)

	store := memory.NewStore()
	svc := product.NewService(store.Products())
	ctx := operatorContext()

	counts, err := seed(ctx, svc, catalog, false)
	require.NoError(t, err)

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 15, total)
	assert.Len(t, counts, len(product.Categories))

	// Second run leaves the catalog alone.
	counts, err = seed(ctx, svc, catalog, false)
	require.NoError(t, err)
	assert.Empty(t, counts)

	all, err := svc.List(context.Background(), product.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 15)

	// Reset replaces it.
	_, err = seed(ctx, svc, catalog[:2], true)
	require.NoError(t, err)

	all, err = svc.List(context.Background(), product.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSeed_RequiresOperator(t *testing.T) {
	svc := product.NewService(memory.NewStore().Products())

	_, err := seed(context.Background(), svc, []product.NewProductInput{{Name: "X", Category: "gadgets"}}, false)
	assert.Error(t, err)
}
