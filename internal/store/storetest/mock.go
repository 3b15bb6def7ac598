// Package storetest provides a testify mock of store.ProductStorer for the
// packages that sit on top of the store.
package storetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/store"
)

// MockProductStorer is a mock implementation of store.ProductStorer.
type MockProductStorer struct {
	mock.Mock
}

var _ store.ProductStorer = (*MockProductStorer)(nil)

func products(v any) []domain.Product {
	if v == nil {
		return nil
	}
	return v.([]domain.Product)
}

func (m *MockProductStorer) ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	args := m.Called(ctx, params)
	return products(args.Get(0)), args.Int(1), args.Error(2)
}

func (m *MockProductStorer) ListCandidates(ctx context.Context, params store.ListProductsParams) ([]domain.Product, error) {
	args := m.Called(ctx, params)
	return products(args.Get(0)), args.Error(1)
}

func (m *MockProductStorer) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) ListAllProducts(ctx context.Context, limit, offset int) ([]domain.Product, int, error) {
	args := m.Called(ctx, limit, offset)
	return products(args.Get(0)), args.Int(1), args.Error(2)
}

func (m *MockProductStorer) CountProducts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockProductStorer) UpsertProduct(ctx context.Context, input domain.ProductInput) (domain.UpsertResult, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(domain.UpsertResult), args.Error(1)
}

func (m *MockProductStorer) DeleteProductBySKU(ctx context.Context, sku string) error {
	args := m.Called(ctx, sku)
	return args.Error(0)
}

func (m *MockProductStorer) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (domain.ImportResult, error) {
	args := m.Called(ctx, inputs)
	return args.Get(0).(domain.ImportResult), args.Error(1)
}

func (m *MockProductStorer) ListCategoryPairs(ctx context.Context) ([]domain.CategoryPair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CategoryPair), args.Error(1)
}

func (m *MockProductStorer) RemoveCategory(ctx context.Context, field store.CategoryField, name string) (int64, error) {
	args := m.Called(ctx, field, name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductStorer) ListTagStrings(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockProductStorer) ListProductsByTag(ctx context.Context, token string, limit int) ([]domain.Product, error) {
	args := m.Called(ctx, token, limit)
	return products(args.Get(0)), args.Error(1)
}

func (m *MockProductStorer) RemoveTag(ctx context.Context, tag string) (int, error) {
	args := m.Called(ctx, tag)
	return args.Int(0), args.Error(1)
}

func (m *MockProductStorer) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
