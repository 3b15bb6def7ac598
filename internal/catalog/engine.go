// Package catalog resolves storefront queries against the product store:
// filter sanitization, the store-versus-memory filtering decision, stable
// pagination, retries of transient store failures, and the cache-aside
// service that fronts it all.
package catalog

import (
	"context"
	"log"
	"strings"

	"github.com/benbjohnson/clock"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/store"
)

// HomeListSize is the number of products in each home bundle list.
const HomeListSize = 12

// Tag tokens that feed the home bundle.
const (
	TagPopular      = "popular"
	TagSpecialPrice = "special_price"
)

// Engine runs catalog queries against a ProductStorer.
type Engine struct {
	store  store.ProductStorer
	retry  RetryPolicy
	clock  clock.Clock
	logger *log.Logger
}

// NewEngine creates an Engine. A nil clock uses the wall clock and a nil
// logger writes to the standard logger.
func NewEngine(s store.ProductStorer, retry RetryPolicy, clk clock.Clock, logger *log.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: s, retry: retry, clock: clk, logger: logger}
}

// Search resolves a listing request to one page of products.
//
// With a free-text query, candidates are narrowed by parent and child in the
// store and then matched in memory. With parent and child but no query, the
// child is matched in memory against every product of the parent, since
// stored child labels use inconsistent punctuation. Everything else is
// filtered and paginated by the store.
func (e *Engine) Search(ctx context.Context, f Filter) (domain.ProductPage, error) {
	page := domain.ProductPage{Page: f.Page, PerPage: f.PerPage, Items: []domain.Product{}}

	var matched []domain.Product
	switch {
	case f.Query != "":
		candidates, err := e.candidates(ctx, store.ListProductsParams{Parent: f.Parent, Child: f.Child})
		if err != nil {
			return domain.ProductPage{}, err
		}
		matched = MatchQuery(candidates, f.Query)
	case f.Parent != "" && f.Child != "":
		candidates, err := e.candidates(ctx, store.ListProductsParams{Parent: f.Parent})
		if err != nil {
			return domain.ProductPage{}, err
		}
		matched = FilterChild(candidates, f.Child)
	default:
		params := store.ListProductsParams{Parent: f.Parent, Child: f.Child, Limit: f.PerPage, Offset: f.Offset()}
		type listing struct {
			items []domain.Product
			total int
		}
		res, err := withRetry(ctx, e, "ListProducts", func(ctx context.Context) (listing, error) {
			items, total, err := e.store.ListProducts(ctx, params)
			return listing{items, total}, err
		})
		if err != nil {
			return domain.ProductPage{}, err
		}
		page.Total = res.total
		if res.items != nil {
			page.Items = res.items
		}
		return page, nil
	}

	SortListing(matched)
	page.Total = len(matched)
	page.Items = Paginate(matched, f.Page, f.PerPage)
	return page, nil
}

func (e *Engine) candidates(ctx context.Context, params store.ListProductsParams) ([]domain.Product, error) {
	return withRetry(ctx, e, "ListCandidates", func(ctx context.Context) ([]domain.Product, error) {
		return e.store.ListCandidates(ctx, params)
	})
}

// Product looks a product up by its case-sensitive SKU.
func (e *Engine) Product(ctx context.Context, sku string) (*domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, ErrSKURequired
	}
	return withRetry(ctx, e, "GetProductBySKU", func(ctx context.Context) (*domain.Product, error) {
		return e.store.GetProductBySKU(ctx, sku)
	})
}

// Categories returns every distinct category pair in display order.
func (e *Engine) Categories(ctx context.Context) ([]domain.CategoryPair, error) {
	pairs, err := withRetry(ctx, e, "ListCategoryPairs", e.store.ListCategoryPairs)
	if err != nil {
		return nil, err
	}
	if pairs == nil {
		pairs = []domain.CategoryPair{}
	}
	SortCategories(pairs)
	return pairs, nil
}

// Tags returns the distinct tags across all products with display labels.
func (e *Engine) Tags(ctx context.Context) ([]domain.Tag, error) {
	raw, err := withRetry(ctx, e, "ListTagStrings", e.store.ListTagStrings)
	if err != nil {
		return nil, err
	}
	return CollectTags(raw), nil
}

// Home builds the landing page bundle from the newest popular and
// special-price products.
func (e *Engine) Home(ctx context.Context) (domain.HomeBundle, error) {
	popular, err := e.productsByTag(ctx, TagPopular)
	if err != nil {
		return domain.HomeBundle{}, err
	}
	special, err := e.productsByTag(ctx, TagSpecialPrice)
	if err != nil {
		return domain.HomeBundle{}, err
	}
	return domain.HomeBundle{
		Popular:       popular,
		SpecialPrices: special,
		GeneratedAt:   e.clock.Now().UTC(),
	}, nil
}

func (e *Engine) productsByTag(ctx context.Context, token string) ([]domain.Product, error) {
	products, err := withRetry(ctx, e, "ListProductsByTag", func(ctx context.Context) ([]domain.Product, error) {
		return e.store.ListProductsByTag(ctx, token, HomeListSize)
	})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// --- Admin operations ---

// AdminPage is the admin product listing.
type AdminPage struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

// ListAll returns products newest first. A zero limit returns every product.
func (e *Engine) ListAll(ctx context.Context, limit, offset int) (AdminPage, error) {
	return withRetry(ctx, e, "ListAllProducts", func(ctx context.Context) (AdminPage, error) {
		products, total, err := e.store.ListAllProducts(ctx, limit, offset)
		if products == nil {
			products = []domain.Product{}
		}
		return AdminPage{Products: products, Total: total}, err
	})
}

// Upsert updates the product with input.SKU or inserts it when absent.
func (e *Engine) Upsert(ctx context.Context, input domain.ProductInput) (domain.UpsertResult, error) {
	return withRetry(ctx, e, "UpsertProduct", func(ctx context.Context) (domain.UpsertResult, error) {
		return e.store.UpsertProduct(ctx, input)
	})
}

// Delete removes the product with the given SKU.
func (e *Engine) Delete(ctx context.Context, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ErrSKURequired
	}
	_, err := withRetry(ctx, e, "DeleteProductBySKU", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.DeleteProductBySKU(ctx, sku)
	})
	return err
}

// Import applies a batch of inputs in a single store transaction.
func (e *Engine) Import(ctx context.Context, inputs []domain.ProductInput) (domain.ImportResult, error) {
	return withRetry(ctx, e, "BulkUpsert", func(ctx context.Context) (domain.ImportResult, error) {
		return e.store.BulkUpsert(ctx, inputs)
	})
}

// RemoveTag strips tag from every product and returns how many changed.
func (e *Engine) RemoveTag(ctx context.Context, tag string) (int, error) {
	return withRetry(ctx, e, "RemoveTag", func(ctx context.Context) (int, error) {
		return e.store.RemoveTag(ctx, tag)
	})
}

// RemoveCategory clears a parent or child category name from every product.
func (e *Engine) RemoveCategory(ctx context.Context, field store.CategoryField, name string) (int64, error) {
	return withRetry(ctx, e, "RemoveCategory", func(ctx context.Context) (int64, error) {
		return e.store.RemoveCategory(ctx, field, name)
	})
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
