package catalog

import (
	"sort"
	"strings"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/textnorm"
)

// MatchChild reports whether a stored child category matches the requested
// one. Both sides are normalized with commas and whitespace collapsed; when
// plain containment fails, containment is retried with all spaces removed.
func MatchChild(stored, want string) bool {
	w := textnorm.Label(want)
	c := textnorm.Label(stored)
	if c == "" {
		return false
	}
	if strings.Contains(c, w) {
		return true
	}
	return strings.Contains(textnorm.Compact(c), textnorm.Compact(w))
}

// FilterChild keeps the products whose child category matches want.
func FilterChild(products []domain.Product, want string) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if MatchChild(p.ChildCategory, want) {
			out = append(out, p)
		}
	}
	return out
}

func searchFields(p domain.Product) [6]string {
	return [6]string{p.Title, p.SKU, p.Brand, p.Tags, p.ParentCategory, p.ChildCategory}
}

func matchesAny(p domain.Product, q string, fold func(string) string) bool {
	for _, field := range searchFields(p) {
		if strings.Contains(fold(field), q) {
			return true
		}
	}
	return false
}

// MatchQuery filters products by free text. The first pass is a plain
// case-insensitive substring match; only when it finds nothing is the query
// retried with Turkish letters folded on both sides.
func MatchQuery(products []domain.Product, q string) []domain.Product {
	if q == "" {
		return products
	}
	out := matchPass(products, textnorm.Lower(q), textnorm.Lower)
	if len(out) > 0 {
		return out
	}
	return matchPass(products, textnorm.Normalize(q), textnorm.Normalize)
}

func matchPass(products []domain.Product, q string, fold func(string) string) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if matchesAny(p, q, fold) {
			out = append(out, p)
		}
	}
	return out
}

// SortListing orders products by lowercase sku, then id.
func SortListing(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := strings.ToLower(products[i].SKU), strings.ToLower(products[j].SKU)
		if a != b {
			return a < b
		}
		return products[i].ID < products[j].ID
	})
}

// Paginate returns the page-th slice of perPage items. A page past the end
// is empty, never nil.
func Paginate(products []domain.Product, page, perPage int) []domain.Product {
	start := (page - 1) * perPage
	if start < 0 || start >= len(products) {
		return []domain.Product{}
	}
	end := start + perPage
	if end > len(products) {
		end = len(products)
	}
	out := make([]domain.Product, end-start)
	copy(out, products[start:end])
	return out
}
