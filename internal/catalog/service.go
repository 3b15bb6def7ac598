package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/store"
)

// Cache keys of the shared payloads.
var (
	CategoriesKey = cache.Key("categories")
	TagsKey       = cache.Key("tags")
	HomeKey       = cache.Key("home")
)

// ProductsKey is the cache key of one listing page.
func ProductsKey(f Filter) string {
	return cache.Key("products", f.Parent, f.Child, f.Query, f.Page, f.PerPage)
}

// ProductKey is the cache key of a single product.
func ProductKey(sku string) string {
	return cache.Key("product", sku)
}

// TTLs holds how long each payload type stays cached. A zero TTL disables
// caching for that payload.
type TTLs struct {
	Search     time.Duration
	Listing    time.Duration
	Product    time.Duration
	Categories time.Duration
	Tags       time.Duration
	Home       time.Duration
}

// DefaultTTLs mirror the configuration defaults.
var DefaultTTLs = TTLs{
	Search:     60 * time.Second,
	Listing:    5 * time.Minute,
	Product:    10 * time.Minute,
	Categories: time.Hour,
	Tags:       time.Hour,
	Home:       2 * time.Hour,
}

// Service fronts an Engine with a response cache and validates admin input.
type Service struct {
	engine   *Engine
	cache    cache.Cache
	ttl      TTLs
	validate *validator.Validate
	group    singleflight.Group
	logger   *log.Logger
}

// NewService creates a Service. A nil cache disables caching.
func NewService(engine *Engine, c cache.Cache, ttl TTLs, logger *log.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		engine:   engine,
		cache:    c,
		ttl:      ttl,
		validate: NewValidator(),
		logger:   logger,
	}
}

// Engine returns the underlying query engine.
func (s *Service) Engine() *Engine { return s.engine }

// cached is cache-aside over load. Concurrent misses on the same key share a
// single load, which runs detached from the caller's cancellation so one
// abandoned request does not fail the others. The bool reports a cache hit.
func cached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var hit T
	if cache.GetJSON(ctx, s.cache, key, &hit) {
		return hit, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		value, err := load(detached)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			s.cache.Set(detached, key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}

// Search returns one listing page. Free-text results use the short search TTL.
func (s *Service) Search(ctx context.Context, f Filter) (domain.ProductPage, bool, error) {
	ttl := s.ttl.Listing
	if f.Query != "" {
		ttl = s.ttl.Search
	}
	return cached(ctx, s, ProductsKey(f), ttl, func(ctx context.Context) (domain.ProductPage, error) {
		return s.engine.Search(ctx, f)
	})
}

// Product returns the product with the given SKU. Misses are not cached.
func (s *Service) Product(ctx context.Context, sku string) (*domain.Product, bool, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, false, ErrSKURequired
	}
	return cached(ctx, s, ProductKey(sku), s.ttl.Product, func(ctx context.Context) (*domain.Product, error) {
		return s.engine.Product(ctx, sku)
	})
}

// Categories returns the ordered category pairs.
func (s *Service) Categories(ctx context.Context) ([]domain.CategoryPair, bool, error) {
	return cached(ctx, s, CategoriesKey, s.ttl.Categories, s.engine.Categories)
}

// Tags returns the labelled tag list.
func (s *Service) Tags(ctx context.Context) ([]domain.Tag, bool, error) {
	return cached(ctx, s, TagsKey, s.ttl.Tags, s.engine.Tags)
}

// Home returns the landing page bundle, building it on a cold miss.
func (s *Service) Home(ctx context.Context) (domain.HomeBundle, bool, error) {
	return cached(ctx, s, HomeKey, s.ttl.Home, s.engine.Home)
}

// RefreshHome rebuilds the home bundle and overwrites the cached copy.
// stored is false when the cache write failed.
func (s *Service) RefreshHome(ctx context.Context) (bundle domain.HomeBundle, stored bool, err error) {
	bundle, err = s.engine.Home(ctx)
	if err != nil {
		return domain.HomeBundle{}, false, err
	}
	stored = s.cache.Set(ctx, HomeKey, bundle, s.ttl.Home)
	if stored {
		s.logger.Printf("INFO: Home bundle regenerated (%d popular, %d special price)",
			len(bundle.Popular), len(bundle.SpecialPrices))
	} else {
		s.logger.Printf("WARN: Home bundle regenerated but could not be cached")
	}
	return bundle, stored, nil
}

// --- Admin operations ---

// AdminProducts lists products newest first.
func (s *Service) AdminProducts(ctx context.Context, limit, offset int) (AdminPage, error) {
	return s.engine.ListAll(ctx, limit, offset)
}

// AdminProduct fetches one product bypassing the cache.
func (s *Service) AdminProduct(ctx context.Context, sku string) (*domain.Product, error) {
	return s.engine.Product(ctx, sku)
}

// ValidateInput checks an admin product payload.
func (s *Service) ValidateInput(input domain.ProductInput) error {
	input.SKU = strings.TrimSpace(input.SKU)
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// UpsertProduct validates and stores input, then drops the cached payloads
// it may have changed.
func (s *Service) UpsertProduct(ctx context.Context, input domain.ProductInput) (domain.UpsertResult, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	if err := s.ValidateInput(input); err != nil {
		return domain.UpsertResult{}, err
	}
	result, err := s.engine.Upsert(ctx, input)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	s.invalidate(ctx, input.SKU)
	return result, nil
}

// DeleteProduct removes a product by SKU.
func (s *Service) DeleteProduct(ctx context.Context, sku string) error {
	sku = strings.TrimSpace(sku)
	if err := s.engine.Delete(ctx, sku); err != nil {
		return err
	}
	s.invalidate(ctx, sku)
	return nil
}

// ImportProducts validates each row, applies the valid ones in one store
// transaction and reports row errors by their index in inputs.
func (s *Service) ImportProducts(ctx context.Context, inputs []domain.ProductInput) (domain.ImportResult, error) {
	result := domain.ImportResult{Errors: []domain.ImportRowError{}}
	valid := make([]domain.ProductInput, 0, len(inputs))
	positions := make([]int, 0, len(inputs))
	for i, input := range inputs {
		input.SKU = strings.TrimSpace(input.SKU)
		if err := s.ValidateInput(input); err != nil {
			result.Errors = append(result.Errors, domain.ImportRowError{Index: i, SKU: input.SKU, Error: err.Error()})
			continue
		}
		valid = append(valid, input)
		positions = append(positions, i)
	}

	if len(valid) > 0 {
		applied, err := s.engine.Import(ctx, valid)
		if err != nil {
			return domain.ImportResult{}, err
		}
		result.Inserted = applied.Inserted
		result.Updated = applied.Updated
		failed := make(map[int]bool, len(applied.Errors))
		for _, rowErr := range applied.Errors {
			failed[rowErr.Index] = true
			rowErr.Index = positions[rowErr.Index]
			result.Errors = append(result.Errors, rowErr)
		}
		for i, input := range valid {
			if !failed[i] {
				s.cache.Delete(ctx, ProductKey(input.SKU))
			}
		}
		s.invalidateShared(ctx)
	}

	sortRowErrors(result.Errors)
	s.logger.Printf("INFO: Bulk import finished: %d inserted, %d updated, %d errors",
		result.Inserted, result.Updated, len(result.Errors))
	return result, nil
}

func sortRowErrors(errs []domain.ImportRowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Index < errs[j].Index })
}

// DeleteTag removes tag from every product.
func (s *Service) DeleteTag(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, fmt.Errorf("%w: tag is required", ErrInvalidInput)
	}
	n, err := s.engine.RemoveTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	s.invalidateShared(ctx)
	return n, nil
}

// DeleteCategory clears a parent or child category name from every product.
func (s *Service) DeleteCategory(ctx context.Context, field store.CategoryField, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	n, err := s.engine.RemoveCategory(ctx, field, name)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCategoryType) {
			return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return 0, err
	}
	s.invalidateShared(ctx)
	return n, nil
}

// ClearCache removes every cached payload and returns how many were removed.
func (s *Service) ClearCache(ctx context.Context) (int, error) {
	n, err := s.cache.Clear(ctx)
	if err != nil {
		s.logger.Printf("WARN: Cache clear removed %d entries with errors: %v", n, err)
		return n, err
	}
	s.logger.Printf("INFO: Cache cleared (%d entries)", n)
	return n, nil
}

func (s *Service) invalidate(ctx context.Context, sku string) {
	s.cache.Delete(ctx, ProductKey(sku))
	s.invalidateShared(ctx)
}

// invalidateShared drops the payloads derived from every product. Listing
// pages are left to expire on their TTL.
func (s *Service) invalidateShared(ctx context.Context) {
	s.cache.Delete(ctx, CategoriesKey)
	s.cache.Delete(ctx, TagsKey)
	s.cache.Delete(ctx, HomeKey)
}
