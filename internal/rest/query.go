package rest

import (
	"net/url"
	"strconv"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/product"

	"github.com/shopspring/decimal"
)

// parseListOptions maps the catalog query string onto product.ListOptions.
// Absent or empty parameters leave the corresponding filter unset.
func parseListOptions(q url.Values) (product.ListOptions, error) {
	opts := product.ListOptions{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sort:     product.ParseSortKey(q.Get("sort")),
	}

	var err error
	if opts.MinPrice, err = optionalMoney(q, "minPrice"); err != nil {
		return opts, err
	}
	if opts.MaxPrice, err = optionalMoney(q, "maxPrice"); err != nil {
		return opts, err
	}
	if opts.Featured, err = optionalBool(q, "featured"); err != nil {
		return opts, err
	}
	if opts.Trending, err = optionalBool(q, "trending"); err != nil {
		return opts, err
	}
	return opts, nil
}

func optionalMoney(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := product.Money(raw)
	if err != nil {
		return nil, apperror.Validation("invalid %s %q", key, raw)
	}
	return &d, nil
}

func optionalBool(q url.Values, key string) (*bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.Validation("invalid %s %q", key, raw)
	}
	return &b, nil
}
