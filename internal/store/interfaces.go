package store

import (
	"context"

	"storefront-catalog/internal/domain"
)

// ListProductsParams holds the store-level filters for a product listing.
// Parent and Child are matched as normalized substrings; empty means no filter.
// A zero Limit returns every matching row.
type ListProductsParams struct {
	Parent string
	Child  string
	Limit  int
	Offset int
}

// CategoryField names the product column a category removal targets.
type CategoryField string

const (
	CategoryParent CategoryField = "parent"
	CategoryChild  CategoryField = "child"
)

// ProductStorer defines the database operations the catalog needs.
type ProductStorer interface {
	// ListProducts returns one page ordered by LOWER(sku), id plus the total match count.
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error)
	// ListCandidates returns every product matching the store-level filters, in listing order.
	ListCandidates(ctx context.Context, params ListProductsParams) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	// ListAllProducts is the admin listing, newest first.
	ListAllProducts(ctx context.Context, limit, offset int) ([]domain.Product, int, error)
	CountProducts(ctx context.Context) (int, error)

	UpsertProduct(ctx context.Context, input domain.ProductInput) (domain.UpsertResult, error)
	DeleteProductBySKU(ctx context.Context, sku string) error
	BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (domain.ImportResult, error)

	ListCategoryPairs(ctx context.Context) ([]domain.CategoryPair, error)
	RemoveCategory(ctx context.Context, field CategoryField, name string) (int64, error)

	ListTagStrings(ctx context.Context) ([]string, error)
	// ListProductsByTag returns products whose tag list contains token, newest first.
	ListProductsByTag(ctx context.Context, token string, limit int) ([]domain.Product, error)
	RemoveTag(ctx context.Context, tag string) (int, error)

	Ping(ctx context.Context) error
}
