package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// next lists the forward step allowed from each status. Cancellation is
// handled separately.
var next = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// CanTransition reports whether an order in status from may move to to.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from != StatusDelivered && from != StatusCancelled
	}
	return next[from] == to
}

// RestocksOnCancel reports whether cancelling from this status returns
// the reserved units to the catalog. Shipped goods are already gone.
func RestocksOnCancel(from Status) bool {
	return from == StatusPending || from == StatusProcessing
}

// AcceptsTracking reports whether a tracking number may be set when moving to s.
func AcceptsTracking(s Status) bool {
	return s == StatusProcessing || s == StatusShipped || s == StatusDelivered
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type Customer struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

// LineItem is a product snapshot taken when the order was accepted.
type LineItem struct {
	ProductID   string          `json:"product"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"orderId"`
	Customer         Customer        `json:"customer"`
	Items            []LineItem      `json:"items"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference"`
	Status           Status          `json:"status"`
	TrackingNumber   string          `json:"trackingNumber,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}

// ComputeTotal sums the line subtotals.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Subtotal())
	}
	return total
}

type ItemInput struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderInput struct {
	Customer         *Customer       `json:"customer"`
	Items            []ItemInput     `json:"items"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference"`
}

type UpdateStatusInput struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
}

// StatusChange is the outcome of a committed transition.
type StatusChange struct {
	Order          *Order
	From           Status
	RestockedUnits int
}

type DashboardStats struct {
	TotalOrders      int             `json:"totalOrders"`
	PendingOrders    int             `json:"pendingOrders"`
	ProcessingOrders int             `json:"processingOrders"`
	ShippedOrders    int             `json:"shippedOrders"`
	DeliveredOrders  int             `json:"deliveredOrders"`
	CancelledOrders  int             `json:"cancelledOrders"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
}
