package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/logger"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	List(ctx context.Context, opts ListOptions) ([]*Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
	Create(ctx context.Context, p *Product) error
	// Update loads the product under a row lock, lets apply mutate it and
	// writes the result back in the same transaction.
	Update(ctx context.Context, id string, apply func(p *Product) error) (*Product, error)
	Delete(ctx context.Context, id string) error
	// AddReview appends r and recomputes the rating from the stored reviews
	// as one atomic unit.
	AddReview(ctx context.Context, productID string, r Review) (*Product, error)
}

const productColumns = `p.id, p.name, p.description, p.price, p.original_price, p.category, p.stock,
	p.featured, p.trending, p.rating, p.tags, p.images, p.created_at, p.updated_at`

const pgUniqueViolation = "23505"

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p        Product
		original decimal.NullDecimal
		category string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &original, &category, &p.Stock,
		&p.Featured, &p.Trending, &p.Rating, pq.Array(&p.Tags), pq.Array(&p.Images),
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if original.Valid {
		p.OriginalPrice = &original.Decimal
	}
	p.Category = Category(category)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	p.Reviews = []Review{}
	return &p, nil
}

func (r *repository) List(ctx context.Context, opts ListOptions) ([]*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "List"),
	)

	query, args := buildListQuery(opts)
	log.Debug("executing product list query", zap.String("query", query), zap.Any("args", args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("product list query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	products := []*Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			log.Error("product row scan failed", zap.Error(err))
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachReviews(ctx, r.db, products); err != nil {
		log.Error("failed to load reviews", zap.Error(err))
		return nil, err
	}
	return products, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachReviews(ctx, r.db, []*Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p *Product) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (
			id, name, description, price, original_price, category, stock,
			featured, trending, rating, tags, images
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at
	`,
		p.ID, p.Name, p.Description, p.Price, nullDecimal(p.OriginalPrice), string(p.Category), p.Stock,
		p.Featured, p.Trending, p.Rating, pq.Array(p.Tags), pq.Array(p.Images),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicateProduct
		}
		logger.FromCtx(ctx).Error("failed to insert product", zap.String("product_id", p.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) Update(ctx context.Context, id string, apply func(p *Product) error) (*Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := scanProduct(tx.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := apply(p); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE products SET
			name = $2, description = $3, price = $4, original_price = $5, category = $6,
			stock = $7, featured = $8, trending = $9, tags = $10, images = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		p.ID, p.Name, p.Description, p.Price, nullDecimal(p.OriginalPrice), string(p.Category),
		p.Stock, p.Featured, p.Trending, pq.Array(p.Tags), pq.Array(p.Images),
	).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := r.attachReviews(ctx, tx, []*Product{p}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) AddReview(ctx context.Context, productID string, rv Review) (*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "AddReview"),
		zap.String("product_id", productID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Row lock serializes concurrent appends on the same product.
	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM products WHERE id = $1 FOR UPDATE", productID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO product_reviews (id, product_id, author, rating, comment)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, rv.ID, productID, rv.Author, rv.Rating, rv.Comment).Scan(&rv.CreatedAt)
	if err != nil {
		log.Error("failed to insert review", zap.Error(err))
		return nil, err
	}

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products p SET
			rating = (SELECT COALESCE(AVG(rv.rating), 0) FROM product_reviews rv WHERE rv.product_id = p.id),
			updated_at = NOW()
		WHERE p.id = $1
		RETURNING `+productColumns, productID))
	if err != nil {
		log.Error("failed to recompute rating", zap.Error(err))
		return nil, err
	}

	if err := r.attachReviews(ctx, tx, []*Product{p}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info("review added", zap.Int("reviews", len(p.Reviews)), zap.Float64("rating", p.Rating))
	return p, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// attachReviews loads reviews for all products with a single query.
func (r *repository) attachReviews(ctx context.Context, q querier, products []*Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, 0, len(products))
	byID := make(map[string]*Product, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, id, author, rating, comment, created_at
		FROM product_reviews
		WHERE product_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			rv        Review
			createdAt time.Time
		)
		if err := rows.Scan(&productID, &rv.ID, &rv.Author, &rv.Rating, &rv.Comment, &createdAt); err != nil {
			return err
		}
		rv.CreatedAt = createdAt
		if p, ok := byID[productID]; ok {
			p.Reviews = append(p.Reviews, rv)
		}
	}
	return rows.Err()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
