package rest

import (
	"storefront/internal/order"
	"storefront/internal/product"
)

type productResponse struct {
	*product.Product
	Discount int `json:"discount"`
}

func toProductResponse(p *product.Product) productResponse {
	out := p.Clone()
	if out.Reviews == nil {
		out.Reviews = []product.Review{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	return productResponse{Product: out, Discount: p.DiscountPercent()}
}

func toProductResponses(ps []*product.Product) []productResponse {
	out := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toOrderResponses(orders []*order.Order) []*order.Order {
	if orders == nil {
		return []*order.Order{}
	}
	return orders
}
