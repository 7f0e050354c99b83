package product

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortOldest    SortKey = "oldest"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortPopular   SortKey = "popular"
	SortName      SortKey = "name"
)

// ParseSortKey maps a raw sort value to a SortKey; unknown values fall back to newest.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortNewest, SortOldest, SortPriceLow, SortPriceHigh, SortPopular, SortName:
		return k
	default:
		return SortNewest
	}
}

// ListOptions are the catalog filters. Every field is optional and all of
// them combine with AND.
type ListOptions struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Search   string
	Featured *bool
	Trending *bool
	Sort     SortKey
}

func (o ListOptions) category() string {
	c := strings.TrimSpace(o.Category)
	if strings.EqualFold(c, "all") {
		return ""
	}
	return c
}

func (o ListOptions) search() string {
	return strings.TrimSpace(o.Search)
}

// Matches reports whether p passes every filter in o.
func (o ListOptions) Matches(p *Product) bool {
	if c := o.category(); c != "" && string(p.Category) != c {
		return false
	}
	if o.MinPrice != nil && p.Price.LessThan(*o.MinPrice) {
		return false
	}
	if o.MaxPrice != nil && p.Price.GreaterThan(*o.MaxPrice) {
		return false
	}
	if o.Featured != nil && p.Featured != *o.Featured {
		return false
	}
	if o.Trending != nil && p.Trending != *o.Trending {
		return false
	}
	if s := o.search(); s != "" && !matchesSearch(p, strings.ToLower(s)) {
		return false
	}
	return true
}

func matchesSearch(p *Product, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// SortProducts orders ps in place by key. Ties fall back to createdAt
// descending, then id, so the order is total.
func SortProducts(ps []*Product, key SortKey) {
	key = ParseSortKey(string(key))
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]

		if c := comparePrimary(a, b, key); c != 0 {
			return c < 0
		}
		if key == SortOldest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// comparePrimary returns <0 when a sorts before b on the key's primary field.
func comparePrimary(a, b *Product, key SortKey) int {
	switch key {
	case SortPriceLow:
		return a.Price.Cmp(b.Price)
	case SortPriceHigh:
		return b.Price.Cmp(a.Price)
	case SortPopular:
		switch {
		case a.Rating > b.Rating:
			return -1
		case a.Rating < b.Rating:
			return 1
		}
		return 0
	case SortName:
		return strings.Compare(a.Name, b.Name)
	default:
		return 0
	}
}

// orderClause mirrors SortProducts in SQL.
func orderClause(key SortKey) string {
	switch ParseSortKey(string(key)) {
	case SortOldest:
		return "p.created_at ASC, p.id ASC"
	case SortPriceLow:
		return "p.price ASC, p.created_at DESC, p.id DESC"
	case SortPriceHigh:
		return "p.price DESC, p.created_at DESC, p.id DESC"
	case SortPopular:
		return "p.rating DESC, p.created_at DESC, p.id DESC"
	case SortName:
		return "p.name ASC, p.created_at DESC, p.id DESC"
	default:
		return "p.created_at DESC, p.id DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildListQuery turns o into a single SELECT over products.
func buildListQuery(o ListOptions) (string, []interface{}) {
	query := "SELECT " + productColumns + " FROM products p"

	where := []string{}
	args := []interface{}{}

	if c := o.category(); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	if o.MinPrice != nil {
		args = append(args, *o.MinPrice)
		where = append(where, fmt.Sprintf("p.price >= $%d", len(args)))
	}
	if o.MaxPrice != nil {
		args = append(args, *o.MaxPrice)
		where = append(where, fmt.Sprintf("p.price <= $%d", len(args)))
	}
	if s := o.search(); s != "" {
		args = append(args, "%"+likeEscaper.Replace(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(p.name ILIKE $%[1]d OR p.description ILIKE $%[1]d OR EXISTS (SELECT 1 FROM unnest(p.tags) AS t(tag) WHERE t.tag ILIKE $%[1]d))",
			n,
		))
	}
	if o.Featured != nil {
		args = append(args, *o.Featured)
		where = append(where, fmt.Sprintf("p.featured = $%d", len(args)))
	}
	if o.Trending != nil {
		args = append(args, *o.Trending)
		where = append(where, fmt.Sprintf("p.trending = $%d", len(args)))
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderClause(o.Sort)

	return query, args
}

// CacheKey is a canonical encoding of o, equal for equivalent filters.
func (o ListOptions) CacheKey() string {
	var b strings.Builder
	b.WriteString("c=" + o.category())
	if o.MinPrice != nil {
		b.WriteString("|min=" + o.MinPrice.String())
	}
	if o.MaxPrice != nil {
		b.WriteString("|max=" + o.MaxPrice.String())
	}
	b.WriteString("|q=" + strings.ToLower(o.search()))
	if o.Featured != nil {
		b.WriteString("|f=" + strconv.FormatBool(*o.Featured))
	}
	if o.Trending != nil {
		b.WriteString("|t=" + strconv.FormatBool(*o.Trending))
	}
	b.WriteString("|s=" + string(ParseSortKey(string(o.Sort))))
	return b.String()
}
