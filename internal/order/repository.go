package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/apperror"
	"storefront/internal/logger"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

type Repository interface {
	// Create reserves stock for every line and inserts the order as one
	// atomic unit. Nothing is written when any line fails.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
	// UpdateStatus validates and applies a transition under the order lock,
	// restoring stock when a reserved order is cancelled.
	UpdateStatus(ctx context.Context, id string, to Status, tracking *string) (*StatusChange, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

const orderColumns = `o.id, o.order_number, o.customer_name, o.customer_email, o.customer_phone,
	o.street, o.city, o.state, o.zip_code, o.country, o.total_amount, o.payment_method,
	o.payment_reference, o.status, o.tracking_number, o.created_at, o.updated_at`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o        Order
		status   string
		tracking sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.OrderID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Customer.Address.Street, &o.Customer.Address.City, &o.Customer.Address.State,
		&o.Customer.Address.ZipCode, &o.Customer.Address.Country, &o.TotalAmount, &o.PaymentMethod,
		&o.PaymentReference, &status, &tracking, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.TrackingNumber = tracking.String
	o.Items = []LineItem{}
	return &o, nil
}

// byProductID returns the indices of items in ascending product id order,
// the global lock order for stock rows.
func byProductID(items []LineItem) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return items[idx[a]].ProductID < items[idx[b]].ProductID
	})
	return idx
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.String("order_id", o.OrderID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, i := range byProductID(o.Items) {
		li := o.Items[i]

		var price decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = NOW()
			WHERE id = $2 AND stock >= $1
			RETURNING price
		`, li.Quantity, li.ProductID).Scan(&price)
		if errors.Is(err, sql.ErrNoRows) {
			return r.reservationFailure(ctx, tx, li)
		}
		if err != nil {
			log.Error("failed to reserve stock", zap.String("product_id", li.ProductID), zap.Error(err))
			return err
		}
		if !price.Equal(li.UnitPrice) {
			log.Warn("price changed during checkout",
				zap.String("product_id", li.ProductID),
				zap.String("quoted", li.UnitPrice.String()),
				zap.String("current", price.String()),
			)
			return apperror.Conflict("price of %s changed, please review your cart", li.ProductName)
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_name, customer_email, customer_phone,
			street, city, state, zip_code, country, total_amount, payment_method,
			payment_reference, status, tracking_number
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NULL)
		RETURNING created_at, updated_at
	`,
		o.ID, o.OrderID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Customer.Address.Street, o.Customer.Address.City, o.Customer.Address.State,
		o.Customer.Address.ZipCode, o.Customer.Address.Country, o.TotalAmount, o.PaymentMethod,
		o.PaymentReference, string(o.Status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicateOrderID
		}
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for pos, li := range o.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, o.ID, pos, li.ProductID, li.ProductName, li.Quantity, li.UnitPrice)
		if err != nil {
			log.Error("failed to insert order item", zap.Error(err))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// reservationFailure explains why a conditional decrement matched no row.
func (r *repository) reservationFailure(ctx context.Context, tx *sql.Tx, li LineItem) error {
	var (
		name  string
		stock int
	)
	err := tx.QueryRowContext(ctx, "SELECT name, stock FROM products WHERE id = $1", li.ProductID).
		Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.ProductNotFound(li.ProductID)
	}
	if err != nil {
		return err
	}
	return apperror.InsufficientStock(li.ProductID, name, li.Quantity, stock)
}

func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, r.db, "o.id = $1", id, false)
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	return r.getOne(ctx, r.db, "o.order_number = $1", orderID, false)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *repository) getOne(ctx context.Context, q querier, cond string, arg string, lock bool) (*Order, error) {
	query := "SELECT " + orderColumns + " FROM orders o WHERE " + cond
	if lock {
		query += " FOR UPDATE"
	}

	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, q, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) List(ctx context.Context) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrders"),
	)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders o ORDER BY o.created_at DESC, o.id DESC")
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) attachItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[string]*Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			li      LineItem
		)
		if err := rows.Scan(&orderID, &li.ProductID, &li.ProductName, &li.Quantity, &li.UnitPrice); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, li)
		}
	}
	return rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id string, to Status, tracking *string) (*StatusChange, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateStatus"),
		zap.String("id", id),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// The row lock makes the check and the restock one step, so two
	// concurrent cancellations cannot both restore stock.
	o, err := r.getOne(ctx, tx, "o.id = $1", id, true)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if !CanTransition(from, to) {
		return nil, apperror.InvalidTransition(string(from), string(to))
	}

	change := &StatusChange{From: from}
	if to == StatusCancelled && RestocksOnCancel(from) {
		for _, i := range byProductID(o.Items) {
			li := o.Items[i]
			res, err := tx.ExecContext(ctx,
				"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
				li.Quantity, li.ProductID)
			if err != nil {
				log.Error("failed to restock product", zap.String("product_id", li.ProductID), zap.Error(err))
				return nil, err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				log.Warn("product no longer exists, skipping restock", zap.String("product_id", li.ProductID))
				continue
			}
			change.RestockedUnits += li.Quantity
		}
	}

	if tracking != nil {
		o.TrackingNumber = *tracking
	}
	o.Status = to

	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $2, tracking_number = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, o.ID, string(o.Status), o.TrackingNumber).Scan(&o.UpdatedAt)
	if err != nil {
		log.Error("failed to update order status", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	change.Order = o
	return change, nil
}

func (r *repository) Stats(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'shipped'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'cancelled'), 0)
		FROM orders
	`).Scan(
		&s.TotalOrders, &s.PendingOrders, &s.ProcessingOrders, &s.ShippedOrders,
		&s.DeliveredOrders, &s.CancelledOrders, &s.TotalRevenue,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load order stats", zap.Error(err))
		return nil, err
	}
	return &s, nil
}
