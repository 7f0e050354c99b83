package memory

import (
	"context"

	"storefront/internal/product"
)

type ProductRepository struct {
	s *Store
}

var _ product.Repository = (*ProductRepository)(nil)

func (r *ProductRepository) List(ctx context.Context, opts product.ListOptions) ([]*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []*product.Product{}
	for _, e := range r.s.productEntries() {
		e.mu.Lock()
		if !e.deleted && opts.Matches(e.p) {
			out = append(out, e.p.Clone())
		}
		e.mu.Unlock()
	}
	product.SortProducts(out, opts.Sort)
	return out, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	e, ok := r.s.productEntry(id)
	if !ok {
		return nil, product.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, product.ErrProductNotFound
	}
	return e.p.Clone(), nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		p, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out[id] = p
	}
	return out, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	now := r.s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	r.s.productsMu.Lock()
	defer r.s.productsMu.Unlock()
	if _, exists := r.s.products[p.ID]; exists {
		return product.ErrDuplicateProduct
	}
	r.s.products[p.ID] = &productEntry{p: p.Clone()}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, id string, apply func(p *product.Product) error) (*product.Product, error) {
	e, ok := r.s.productEntry(id)
	if !ok {
		return nil, product.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, product.ErrProductNotFound
	}

	next := e.p.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.s.now()
	e.p = next
	return next.Clone(), nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	e, ok := r.s.productEntry(id)
	if !ok {
		return product.ErrProductNotFound
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return product.ErrProductNotFound
	}
	e.deleted = true
	e.mu.Unlock()

	r.s.productsMu.Lock()
	delete(r.s.products, id)
	r.s.productsMu.Unlock()
	return nil
}

func (r *ProductRepository) AddReview(ctx context.Context, productID string, rv product.Review) (*product.Product, error) {
	e, ok := r.s.productEntry(productID)
	if !ok {
		return nil, product.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, product.ErrProductNotFound
	}

	now := r.s.now()
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = now
	}
	e.p.Reviews = append(e.p.Reviews, rv)
	e.p.Rating = product.MeanRating(e.p.Reviews)
	e.p.UpdatedAt = now
	return e.p.Clone(), nil
}
