package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/auth"
	"storefront/internal/events"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxOrderIDAttempts = 3

// totalTolerance is how far a client-quoted total may drift from the
// computed one before the order is rejected.
var totalTolerance = decimal.RequireFromString("0.01")

type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error)
	UpdateStatus(ctx context.Context, ref string, input UpdateStatusInput) (*Order, error)
	Track(ctx context.Context, orderID string) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

// ProductReader reads live product state for validation.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error)
}

// StockInvalidator is told when stock levels change so cached catalog
// listings can be dropped.
type StockInvalidator interface {
	Invalidate(ctx context.Context)
}

type service struct {
	repo      Repository
	products  ProductReader
	publisher events.Publisher
	metrics   *metrics.OrderMetrics
	cache     StockInvalidator
	now       func() time.Time
}

type Option func(*service)

func WithPublisher(p events.Publisher) Option {
	return func(s *service) { s.publisher = p }
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithStockInvalidator(c StockInvalidator) Option {
	return func(s *service) { s.cache = c }
}

func NewService(repo Repository, products ProductReader, opts ...Option) Service {
	s := &service{
		repo:      repo,
		products:  products,
		publisher: events.Noop{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
	)
	timer := metrics.StartTimer()

	o, err := s.placeOrder(ctx, input)
	if err != nil {
		s.metrics.RecordRejected(string(apperror.KindOf(err)))
		if apperror.KindOf(err) == apperror.KindStoreFailure {
			log.Error("order placement failed", zap.Error(err))
		} else {
			log.Info("order rejected", zap.String("reason", err.Error()))
		}
		return nil, err
	}

	s.metrics.RecordPlaced(timer.Duration())
	s.invalidateStock(ctx)
	s.publish(ctx, events.OrderCreated, map[string]any{
		"id":          o.ID,
		"orderId":     o.OrderID,
		"totalAmount": o.TotalAmount.StringFixed(2),
		"items":       o.Items,
		"createdAt":   o.CreatedAt,
	})

	log.Info("order placed",
		zap.String("order_id", o.OrderID),
		zap.Int("lines", len(o.Items)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.Duration("duration", timer.Duration()),
	)
	return o, nil
}

func (s *service) placeOrder(ctx context.Context, input PlaceOrderInput) (*Order, error) {
	customer, err := validateCustomer(input.Customer)
	if err != nil {
		return nil, err
	}

	requested, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}

	// Ids that are not UUIDs cannot exist; they surface as not found below.
	ids := make([]string, 0, len(requested))
	for _, it := range requested {
		if _, err := uuid.Parse(it.ProductID); err == nil {
			ids = append(ids, it.ProductID)
		}
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Every line is checked before anything is written.
	items := make([]LineItem, 0, len(requested))
	for _, it := range requested {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, apperror.ProductNotFound(it.ProductID)
		}
		if p.Stock < it.Quantity {
			return nil, apperror.InsufficientStock(p.ID, p.Name, it.Quantity, p.Stock)
		}
		items = append(items, LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
		})
	}

	total := ComputeTotal(items)
	if total.Sub(input.TotalAmount).Abs().GreaterThan(totalTolerance) {
		return nil, &apperror.Error{
			Kind: apperror.KindValidation,
			Message: "totalAmount " + input.TotalAmount.StringFixed(2) +
				" does not match computed total " + total.StringFixed(2),
			Details: map[string]any{
				"submitted": input.TotalAmount.StringFixed(2),
				"computed":  total.StringFixed(2),
			},
		}
	}

	o := &Order{
		Customer:         customer,
		Items:            items,
		TotalAmount:      total,
		PaymentMethod:    strings.TrimSpace(input.PaymentMethod),
		PaymentReference: strings.TrimSpace(input.PaymentReference),
		Status:           StatusPending,
	}

	for attempt := 1; ; attempt++ {
		o.ID = uuid.NewString()
		o.OrderID = NewOrderID(s.now())

		err = s.repo.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrDuplicateOrderID) || attempt == maxOrderIDAttempts {
			return nil, err
		}
		logger.FromCtx(ctx).Warn("order identifier collision, regenerating",
			zap.String("order_id", o.OrderID),
			zap.Int("attempt", attempt),
		)
	}
}

func validateCustomer(c *Customer) (Customer, error) {
	if c == nil {
		return Customer{}, apperror.Validation("customer is required")
	}
	out := *c
	out.Name = strings.TrimSpace(out.Name)
	out.Email = strings.TrimSpace(out.Email)
	out.Phone = strings.TrimSpace(out.Phone)
	if out.Name == "" {
		return Customer{}, apperror.Validation("customer name is required")
	}
	if out.Email == "" || !strings.Contains(out.Email, "@") {
		return Customer{}, apperror.Validation("customer email is invalid")
	}
	return out, nil
}

// maxLineQuantity matches the INTEGER quantity column.
const maxLineQuantity = math.MaxInt32

// mergeItems validates the requested lines and folds repeated products
// into one line, keeping first-seen order.
func mergeItems(in []ItemInput) ([]ItemInput, error) {
	if len(in) == 0 {
		return nil, apperror.Validation("order must contain at least one item")
	}

	out := make([]ItemInput, 0, len(in))
	pos := make(map[string]int, len(in))
	for _, it := range in {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, apperror.Validation("item product is required")
		}
		if it.Quantity <= 0 {
			return nil, apperror.Validation("quantity for product %s must be positive", id)
		}
		if it.Quantity > maxLineQuantity {
			return nil, quantityTooLarge(id)
		}
		if i, ok := pos[id]; ok {
			if out[i].Quantity > maxLineQuantity-it.Quantity {
				return nil, quantityTooLarge(id)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		pos[id] = len(out)
		out = append(out, ItemInput{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

func quantityTooLarge(id string) error {
	return &apperror.Error{
		Kind:    apperror.KindValidation,
		Message: fmt.Sprintf("quantity for product %s exceeds %d", id, maxLineQuantity),
		Details: map[string]any{"productId": id, "maxQuantity": maxLineQuantity},
	}
}

func (s *service) UpdateStatus(ctx context.Context, ref string, input UpdateStatusInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.String("ref", ref),
	)

	if err := auth.RequireOperator(ctx); err != nil {
		return nil, err
	}

	to, ok := ParseStatus(input.Status)
	if !ok {
		return nil, apperror.Validation("unknown status %q", input.Status)
	}

	var tracking *string
	if input.TrackingNumber != nil {
		t := strings.TrimSpace(*input.TrackingNumber)
		if t != "" {
			if !AcceptsTracking(to) {
				return nil, apperror.Validation("tracking number cannot be set on a %s order", to)
			}
			tracking = &t
		}
	}

	id, err := s.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}

	change, err := s.repo.UpdateStatus(ctx, id, to, tracking)
	if err != nil {
		if !errors.Is(err, apperror.ErrInvalidTransition) && !errors.Is(err, ErrOrderNotFound) {
			log.Error("failed to update order status", zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordTransition(string(to), change.RestockedUnits)
	if change.RestockedUnits > 0 {
		s.invalidateStock(ctx)
	}
	s.publish(ctx, events.OrderStatusChanged, map[string]any{
		"id":             change.Order.ID,
		"orderId":        change.Order.OrderID,
		"from":           change.From,
		"to":             change.Order.Status,
		"trackingNumber": change.Order.TrackingNumber,
		"restockedUnits": change.RestockedUnits,
	})

	log.Info("order status updated",
		zap.String("order_id", change.Order.OrderID),
		zap.String("from", string(change.From)),
		zap.String("to", string(to)),
		zap.Int("restocked_units", change.RestockedUnits),
	)
	return change.Order, nil
}

// resolveID accepts either the internal id or the human order identifier.
func (s *service) resolveID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}
	o, err := s.repo.GetByOrderID(ctx, ref)
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (s *service) Track(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderNotFound
	}
	return s.repo.GetByOrderID(ctx, orderID)
}

func (s *service) Get(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]*Order, error) {
	if err := auth.RequireOperator(ctx); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

func (s *service) Stats(ctx context.Context) (*DashboardStats, error) {
	if err := auth.RequireOperator(ctx); err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx)
}

func (s *service) invalidateStock(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// publish is fire-and-forget: the order is already committed.
func (s *service) publish(ctx context.Context, key string, data any) {
	if err := s.publisher.Publish(ctx, key, data); err != nil {
		logger.FromCtx(ctx).Warn("failed to publish event",
			zap.String("routing_key", key),
			zap.Error(err),
		)
	}
}
