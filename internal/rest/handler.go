package rest

import (
	"net/http"

	"storefront/internal/order"
	"storefront/internal/product"
)

// Handler exposes the catalog and order services over HTTP.
type Handler struct {
	products product.Service
	orders   order.Service
}

func NewHandler(products product.Service, orders order.Service) *Handler {
	return &Handler{products: products, orders: orders}
}

// Register mounts every storefront route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /products", h.listProducts)
	mux.HandleFunc("POST /products", h.createProduct)
	mux.HandleFunc("GET /products/{id}", h.getProduct)
	mux.HandleFunc("PUT /products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /products/{id}", h.deleteProduct)
	mux.HandleFunc("POST /products/{id}/reviews", h.addReview)

	mux.HandleFunc("POST /orders", h.placeOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /orders/track/{orderId}", h.trackOrder)
	mux.HandleFunc("PUT /orders/{id}/status", h.updateOrderStatus)
	mux.HandleFunc("GET /orders/stats/dashboard", h.orderStats)
}

// Routes returns a mux with every route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
