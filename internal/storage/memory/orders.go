package memory

import (
	"context"
	"sort"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/order"

	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	s *Store
}

var _ order.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	ids := make([]string, 0, len(o.Items))
	need := make(map[string]int, len(o.Items))
	for _, li := range o.Items {
		if _, ok := need[li.ProductID]; !ok {
			ids = append(ids, li.ProductID)
		}
		need[li.ProductID] += li.Quantity
	}

	entries, unlock := r.s.lockProducts(ids)
	defer unlock()

	// All checks run before the first decrement.
	sort.Strings(ids)
	for _, id := range ids {
		e, ok := entries[id]
		if !ok {
			return apperror.ProductNotFound(id)
		}
		if e.p.Stock < need[id] {
			return apperror.InsufficientStock(id, e.p.Name, need[id], e.p.Stock)
		}
	}
	for _, li := range o.Items {
		if !entries[li.ProductID].p.Price.Equal(li.UnitPrice) {
			return apperror.Conflict("price of %s changed, please review your cart", li.ProductName)
		}
	}

	now := r.s.now()
	for _, id := range ids {
		e := entries[id]
		e.p.Stock -= need[id]
		e.p.UpdatedAt = now
	}

	if err := r.insert(ctx, o, now); err != nil {
		// Compensate while the product locks are still held, so no reader
		// ever sees the reservation.
		for _, id := range ids {
			entries[id].p.Stock += need[id]
		}
		return err
	}
	return nil
}

func (r *OrderRepository) insert(ctx context.Context, o *order.Order, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.hookMu.Lock()
	hook := r.s.insertHook
	r.s.hookMu.Unlock()
	if hook != nil {
		if err := hook(o); err != nil {
			return err
		}
	}

	r.s.ordersMu.Lock()
	defer r.s.ordersMu.Unlock()

	if _, exists := r.s.byNumber[o.OrderID]; exists {
		return order.ErrDuplicateOrderID
	}
	if _, exists := r.s.orders[o.ID]; exists {
		return order.ErrDuplicateOrderID
	}

	o.CreatedAt = now
	o.UpdatedAt = now
	r.s.orders[o.ID] = &orderEntry{o: o.Clone()}
	r.s.byNumber[o.OrderID] = o.ID
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	e, ok := r.s.orderEntry(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.o.Clone(), nil
}

func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	r.s.ordersMu.RLock()
	id, ok := r.s.byNumber[orderID]
	r.s.ordersMu.RUnlock()
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *OrderRepository) List(ctx context.Context) ([]*order.Order, error) {
	out := []*order.Order{}
	for _, e := range r.s.orderEntries() {
		e.mu.Lock()
		out = append(out, e.o.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, to order.Status, tracking *string) (*order.StatusChange, error) {
	e, ok := r.s.orderEntry(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}

	// Holding the order lock across check and restock means a second
	// cancellation sees the first one's result.
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.o.Status
	if !order.CanTransition(from, to) {
		return nil, apperror.InvalidTransition(string(from), string(to))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.s.now()
	change := &order.StatusChange{From: from}

	if to == order.StatusCancelled && order.RestocksOnCancel(from) {
		ids := make([]string, 0, len(e.o.Items))
		for _, li := range e.o.Items {
			ids = append(ids, li.ProductID)
		}
		entries, unlock := r.s.lockProducts(ids)
		for _, li := range e.o.Items {
			pe, ok := entries[li.ProductID]
			if !ok {
				continue
			}
			pe.p.Stock += li.Quantity
			pe.p.UpdatedAt = now
			change.RestockedUnits += li.Quantity
		}
		unlock()
	}

	next := e.o.Clone()
	next.Status = to
	if tracking != nil {
		next.TrackingNumber = *tracking
	}
	next.UpdatedAt = now
	e.o = next

	change.Order = next.Clone()
	return change, nil
}

func (r *OrderRepository) Stats(ctx context.Context) (*order.DashboardStats, error) {
	stats := &order.DashboardStats{TotalRevenue: decimal.Zero}
	for _, e := range r.s.orderEntries() {
		e.mu.Lock()
		status, total := e.o.Status, e.o.TotalAmount
		e.mu.Unlock()

		stats.TotalOrders++
		switch status {
		case order.StatusPending:
			stats.PendingOrders++
		case order.StatusProcessing:
			stats.ProcessingOrders++
		case order.StatusShipped:
			stats.ShippedOrders++
		case order.StatusDelivered:
			stats.DeliveredOrders++
		case order.StatusCancelled:
			stats.CancelledOrders++
		}
		if status != order.StatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(total)
		}
	}
	return stats, nil
}
