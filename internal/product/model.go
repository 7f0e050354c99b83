package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryGadgets         Category = "gadgets"
	CategoryFitness         Category = "fitness"
	CategoryBeauty          Category = "beauty"
	CategoryHomeDecor       Category = "home-decor"
	CategoryAutoAccessories Category = "auto-accessories"
)

// Categories is the fixed category set of the catalog.
var Categories = []Category{
	CategoryGadgets,
	CategoryFitness,
	CategoryBeauty,
	CategoryHomeDecor,
	CategoryAutoAccessories,
}

func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type Review struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Category      Category         `json:"category"`
	Stock         int              `json:"stock"`
	Featured      bool             `json:"featured"`
	Trending      bool             `json:"trending"`
	Rating        float64          `json:"rating"`
	Reviews       []Review         `json:"reviews"`
	Tags          []string         `json:"tags"`
	Images        []string         `json:"images"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// DiscountPercent is the rounded markdown from OriginalPrice, 0 when there is none.
func (p *Product) DiscountPercent() int {
	if p.OriginalPrice == nil || !p.OriginalPrice.IsPositive() || p.OriginalPrice.LessThanOrEqual(p.Price) {
		return 0
	}
	off := p.OriginalPrice.Sub(p.Price).Div(*p.OriginalPrice).Mul(decimal.NewFromInt(100))
	return int(off.Round(0).IntPart())
}

// Clone returns a deep copy so callers never share slices with a store.
func (p *Product) Clone() *Product {
	c := *p
	if p.OriginalPrice != nil {
		op := *p.OriginalPrice
		c.OriginalPrice = &op
	}
	c.Reviews = append([]Review(nil), p.Reviews...)
	c.Tags = append([]string(nil), p.Tags...)
	c.Images = append([]string(nil), p.Images...)
	return &c
}

// MeanRating is the arithmetic mean of all review ratings, 0 with no reviews.
func MeanRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

type NewProductInput struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	Category      string           `json:"category"`
	Stock         int              `json:"stock"`
	Featured      bool             `json:"featured"`
	Trending      bool             `json:"trending"`
	Tags          []string         `json:"tags"`
	Images        []string         `json:"images"`
}

// UpdateProductInput is a partial update; nil fields are left unchanged.
type UpdateProductInput struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	Category      *string          `json:"category"`
	Stock         *int             `json:"stock"`
	Featured      *bool            `json:"featured"`
	Trending      *bool            `json:"trending"`
	Tags          *[]string        `json:"tags"`
	Images        *[]string        `json:"images"`
}

func (in UpdateProductInput) hasAnyField() bool {
	return in.Name != nil ||
		in.Description != nil ||
		in.Price != nil ||
		in.OriginalPrice != nil ||
		in.Category != nil ||
		in.Stock != nil ||
		in.Featured != nil ||
		in.Trending != nil ||
		in.Tags != nil ||
		in.Images != nil
}

type ReviewInput struct {
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
