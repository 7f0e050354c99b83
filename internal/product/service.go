package product

import (
	"context"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/auth"
	"storefront/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	List(ctx context.Context, opts ListOptions) ([]*Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, input NewProductInput) (*Product, error)
	Update(ctx context.Context, id string, input UpdateProductInput) (*Product, error)
	Delete(ctx context.Context, id string) error
	AddReview(ctx context.Context, id string, input ReviewInput) (*Product, error)
}

// ListCache is an optional read-through cache for catalog listings.
//
// GetList reports the cache generation it looked at. A listing read from the
// store after a miss is written back with that generation, and SetList drops
// it when an Invalidate happened in between.
type ListCache interface {
	GetList(ctx context.Context, key string) (products []*Product, gen string, ok bool)
	SetList(ctx context.Context, key, gen string, products []*Product)
	Invalidate(ctx context.Context)
}

type service struct {
	repo  Repository
	cache ListCache
}

type Option func(*service)

func WithListCache(c ListCache) Option {
	return func(s *service) { s.cache = c }
}

func NewService(repo Repository, opts ...Option) Service {
	s := &service{repo: repo}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) List(ctx context.Context, opts ListOptions) ([]*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ListProducts"),
	)

	start := time.Now()
	opts.Sort = ParseSortKey(string(opts.Sort))

	log.Debug("list products requested",
		zap.Any("filters", map[string]any{
			"category":  opts.Category,
			"min_price": opts.MinPrice,
			"max_price": opts.MaxPrice,
			"search":    opts.Search,
			"featured":  opts.Featured,
			"trending":  opts.Trending,
			"sort":      opts.Sort,
		}),
	)

	key := opts.CacheKey()
	var gen string
	if s.cache != nil {
		var cached []*Product
		var ok bool
		if cached, gen, ok = s.cache.GetList(ctx, key); ok {
			log.Debug("list products served from cache", zap.Int("count", len(cached)))
			return cached, nil
		}
	}

	products, err := s.repo.List(ctx, opts)
	if err != nil {
		log.Error("failed to fetch product list",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetList(ctx, key, gen, products)
	}

	log.Info("list products success",
		zap.Int("count", len(products)),
		zap.Duration("duration", time.Since(start)),
	)
	return products, nil
}

func (s *service) Get(ctx context.Context, id string) (*Product, error) {
	if !validID(id) {
		return nil, ErrProductNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) Create(ctx context.Context, input NewProductInput) (*Product, error) {
	if err := auth.RequireOperator(ctx); err != nil {
		return nil, err
	}

	category, ok := ParseCategory(strings.TrimSpace(input.Category))
	if !ok {
		return nil, apperror.Validation("unknown category %q", input.Category)
	}

	p := &Product{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(input.Name),
		Description:   input.Description,
		Price:         input.Price,
		OriginalPrice: input.OriginalPrice,
		Category:      category,
		Stock:         input.Stock,
		Featured:      input.Featured,
		Trending:      input.Trending,
		Tags:          normalizeTags(input.Tags),
		Images:        nonNil(input.Images),
		Reviews:       []Review{},
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	logger.FromCtx(ctx).Info("product created",
		zap.String("product_id", p.ID),
		zap.String("category", string(p.Category)),
		zap.Int("stock", p.Stock),
	)
	return p, nil
}

func (s *service) Update(ctx context.Context, id string, input UpdateProductInput) (*Product, error) {
	if err := auth.RequireOperator(ctx); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrProductNotFound
	}
	if !input.hasAnyField() {
		return nil, apperror.Validation("no fields to update")
	}

	p, err := s.repo.Update(ctx, id, func(p *Product) error {
		return applyUpdate(p, input)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return p, nil
}

func applyUpdate(p *Product, in UpdateProductInput) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.OriginalPrice != nil {
		op := *in.OriginalPrice
		if op.IsZero() {
			p.OriginalPrice = nil
		} else {
			p.OriginalPrice = &op
		}
	}
	if in.Category != nil {
		c, ok := ParseCategory(strings.TrimSpace(*in.Category))
		if !ok {
			return apperror.Validation("unknown category %q", *in.Category)
		}
		p.Category = c
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
	if in.Trending != nil {
		p.Trending = *in.Trending
	}
	if in.Tags != nil {
		p.Tags = normalizeTags(*in.Tags)
	}
	if in.Images != nil {
		p.Images = nonNil(*in.Images)
	}
	return validateProduct(p)
}

func (s *service) Delete(ctx context.Context, id string) error {
	if err := auth.RequireOperator(ctx); err != nil {
		return err
	}
	if !validID(id) {
		return ErrProductNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)

	logger.FromCtx(ctx).Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *service) AddReview(ctx context.Context, id string, input ReviewInput) (*Product, error) {
	if !validID(id) {
		return nil, ErrProductNotFound
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5")
	}
	author := strings.TrimSpace(input.Author)
	if author == "" {
		return nil, apperror.Validation("author is required")
	}

	p, err := s.repo.AddReview(ctx, id, Review{
		ID:      uuid.NewString(),
		Author:  author,
		Rating:  input.Rating,
		Comment: strings.TrimSpace(input.Comment),
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func validateProduct(p *Product) error {
	if p.Name == "" {
		return apperror.Validation("name cannot be empty")
	}
	if !p.Price.IsPositive() {
		return apperror.Validation("price must be positive")
	}
	if p.OriginalPrice != nil && p.OriginalPrice.LessThan(p.Price) {
		return apperror.Validation("originalPrice must not be lower than price")
	}
	if p.Stock < 0 {
		return apperror.Validation("stock cannot be negative")
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return apperror.Validation("price supports at most two decimal places")
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Money parses a price string; it is shared by the HTTP layer and seeding.
func Money(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, apperror.Validation("invalid amount %q", s)
	}
	return d, nil
}
