package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/store"
	"storefront-catalog/internal/store/storetest"
)

var noWait = RetryPolicy{MaxAttempts: 3}

func PtrTo[T any](v T) *T {
	return &v
}

func newSQLiteEngine(t *testing.T, inputs ...domain.ProductInput) *Engine {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{
		Driver:     store.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Migrate(ctx, nil)
	require.NoError(t, err)

	if len(inputs) > 0 {
		res, err := s.BulkUpsert(ctx, inputs)
		require.NoError(t, err)
		require.Empty(t, res.Errors)
	}
	return NewEngine(s, noWait, nil, log.New(&bytes.Buffer{}, "", 0))
}

func input(sku, parent, child, title string) domain.ProductInput {
	return domain.ProductInput{
		SKU:            sku,
		ParentCategory: PtrTo(parent),
		ChildCategory:  PtrTo(child),
		Title:          PtrTo(title),
	}
}

func page(f Filter) Filter {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PerPage == 0 {
		f.PerPage = 20
	}
	return f
}

func TestEngine_Search_TolerantChildMatch(t *testing.T) {
	e := newSQLiteEngine(t,
		input("A1", "Havalı El Aletleri", "Somun Sıkma, Havalı", "Somun sıkma 1/2"),
		input("A2", "Havalı El Aletleri", "SomunSikmaHavali", "Somun sıkma 3/4"),
		input("A3", "Havalı El Aletleri", "Matkap", "Havalı matkap"),
		input("B1", "Elektrikli Aletler", "Somun Sıkma", "Elektrikli somun sıkma"),
	)

	got, err := e.Search(context.Background(), page(Filter{Parent: "Havalı El Aletleri", Child: "somun sıkma"}))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, []string{"A1", "A2"}, skus(got.Items))
}

func TestEngine_Search_FoldedQueryFallback(t *testing.T) {
	e := newSQLiteEngine(t,
		input("M1", "Akülü Montaj Aletleri", "Matkap", "Sarjli Matkap Seti"),
		input("M2", "Akülü Montaj Aletleri", "Vidalama", "Vidalama"),
	)

	got, err := e.Search(context.Background(), page(Filter{Query: "şarjlı matkap"}))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, []string{"M1"}, skus(got.Items))
}

func TestEngine_Search_PageBeyondEnd(t *testing.T) {
	var inputs []domain.ProductInput
	for i := 1; i <= 5; i++ {
		inputs = append(inputs, input(fmt.Sprintf("P%d", i), "Balancer", "Yaylı", "Balancer"))
	}
	e := newSQLiteEngine(t, inputs...)

	for name, f := range map[string]Filter{
		"store":  {},
		"parent": {Parent: "balancer"},
		"child":  {Parent: "Balancer", Child: "yayli"},
		"query":  {Query: "balancer"},
	} {
		t.Run(name, func(t *testing.T) {
			f.Page, f.PerPage = 50, 20
			got, err := e.Search(context.Background(), f)
			require.NoError(t, err)
			assert.Equal(t, 5, got.Total)
			assert.NotNil(t, got.Items)
			assert.Empty(t, got.Items)
			assert.Equal(t, 50, got.Page)
			assert.Equal(t, 20, got.PerPage)
		})
	}
}

func TestEngine_Search_EmptyCatalog(t *testing.T) {
	e := newSQLiteEngine(t)
	got, err := e.Search(context.Background(), page(Filter{}))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Total)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
}

func TestEngine_Search_PaginationCoversEveryItemOnce(t *testing.T) {
	var inputs []domain.ProductInput
	for i := 0; i < 23; i++ {
		child := "Somun Sıkma"
		if i%3 == 0 {
			child = "Somun  sıkma,"
		}
		sku := fmt.Sprintf("k%02d", i)
		if i%2 == 0 {
			sku = strings.ToUpper(sku)
		}
		inputs = append(inputs, input(sku, "Havalı El Aletleri", child, "Anahtar "+sku))
	}
	e := newSQLiteEngine(t, inputs...)

	filters := []Filter{
		{},
		{Parent: "havali"},
		{Child: "somun"},
		{Parent: "Havalı El Aletleri", Child: "somun sıkma"},
		{Query: "anahtar"},
		{Parent: "havali", Query: "ANAHTAR"},
	}
	for _, base := range filters {
		t.Run(fmt.Sprintf("%+v", base), func(t *testing.T) {
			seen := map[string]bool{}
			var ordered []string
			f := base
			f.PerPage = 5
			first, err := e.Search(context.Background(), page(f))
			require.NoError(t, err)
			require.Equal(t, 23, first.Total)

			pages := (first.Total + f.PerPage - 1) / f.PerPage
			for p := 1; p <= pages; p++ {
				f.Page = p
				got, err := e.Search(context.Background(), f)
				require.NoError(t, err)
				assert.Equal(t, first.Total, got.Total)
				for _, item := range got.Items {
					assert.False(t, seen[item.SKU], "sku %s appears on two pages", item.SKU)
					seen[item.SKU] = true
					ordered = append(ordered, strings.ToLower(item.SKU))
				}
			}
			assert.Len(t, seen, first.Total)
			assert.IsNonDecreasing(t, ordered)
		})
	}
}

func TestEngine_Product(t *testing.T) {
	e := newSQLiteEngine(t, input("Case-1", "Balancer", "", "Balancer"))
	ctx := context.Background()

	p, err := e.Product(ctx, "Case-1")
	require.NoError(t, err)
	assert.Equal(t, "Case-1", p.SKU)

	_, err = e.Product(ctx, "case-1")
	assert.ErrorIs(t, err, store.ErrProductNotFound)

	_, err = e.Product(ctx, "NOPE")
	assert.ErrorIs(t, err, store.ErrProductNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	_, err = e.Product(ctx, "  ")
	assert.ErrorIs(t, err, ErrSKURequired)
}

func TestEngine_Search_DecisionPolicy(t *testing.T) {
	ctx := context.Background()
	catalog := []domain.Product{
		{ID: 2, SKU: "b", ChildCategory: "Somun Sıkma", Title: "Matkap"},
		{ID: 1, SKU: "A", ChildCategory: "Zımpara", Title: "Zımpara"},
	}

	t.Run("no filters paginate in the store", func(t *testing.T) {
		ms := new(storetest.MockProductStorer)
		ms.On("ListProducts", mock.Anything, store.ListProductsParams{Limit: 10, Offset: 10}).
			Return(catalog, 12, nil).Once()
		e := NewEngine(ms, noWait, nil, nil)

		got, err := e.Search(ctx, Filter{Page: 2, PerPage: 10})
		require.NoError(t, err)
		assert.Equal(t, 12, got.Total)
		ms.AssertExpectations(t)
	})

	t.Run("parent only paginates in the store", func(t *testing.T) {
		ms := new(storetest.MockProductStorer)
		ms.On("ListProducts", mock.Anything, store.ListProductsParams{Parent: "Havalı", Limit: 20}).
			Return(nil, 0, nil).Once()
		e := NewEngine(ms, noWait, nil, nil)

		got, err := e.Search(ctx, page(Filter{Parent: "Havalı"}))
		require.NoError(t, err)
		assert.NotNil(t, got.Items)
		ms.AssertExpectations(t)
	})

	t.Run("parent and child match the child in memory", func(t *testing.T) {
		ms := new(storetest.MockProductStorer)
		ms.On("ListCandidates", mock.Anything, store.ListProductsParams{Parent: "Havalı"}).
			Return(catalog, nil).Once()
		e := NewEngine(ms, noWait, nil, nil)

		got, err := e.Search(ctx, page(Filter{Parent: "Havalı", Child: "somun"}))
		require.NoError(t, err)
		assert.Equal(t, 1, got.Total)
		assert.Equal(t, []string{"b"}, skus(got.Items))
		ms.AssertExpectations(t)
	})

	t.Run("query narrows candidates in the store and matches in memory", func(t *testing.T) {
		ms := new(storetest.MockProductStorer)
		ms.On("ListCandidates", mock.Anything, store.ListProductsParams{Parent: "Havalı", Child: "somun"}).
			Return(catalog, nil).Once()
		e := NewEngine(ms, noWait, nil, nil)

		got, err := e.Search(ctx, page(Filter{Parent: "Havalı", Child: "somun", Query: "zimpara"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, skus(got.Items))
		ms.AssertExpectations(t)
	})

	t.Run("in-memory results are sorted by sku", func(t *testing.T) {
		ms := new(storetest.MockProductStorer)
		ms.On("ListCandidates", mock.Anything, store.ListProductsParams{}).Return(catalog, nil).Once()
		e := NewEngine(ms, noWait, nil, nil)

		got, err := e.Search(ctx, page(Filter{Query: "a"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "b"}, skus(got.Items))
	})
}

func TestEngine_RetriesTransientErrors(t *testing.T) {
	var logs bytes.Buffer
	ms := new(storetest.MockProductStorer)
	locked := errors.New("database is locked")
	ms.On("GetProductBySKU", mock.Anything, "X1").Return(nil, locked).Twice()
	ms.On("GetProductBySKU", mock.Anything, "X1").Return(&domain.Product{SKU: "X1"}, nil).Once()
	e := NewEngine(ms, noWait, nil, log.New(&logs, "", 0))

	p, err := e.Product(context.Background(), "X1")
	require.NoError(t, err)
	assert.Equal(t, "X1", p.SKU)
	ms.AssertNumberOfCalls(t, "GetProductBySKU", 3)
	assert.Equal(t, 2, strings.Count(logs.String(), "WARN:"))
}

func TestEngine_SurfacesExhaustedRetries(t *testing.T) {
	var logs bytes.Buffer
	ms := new(storetest.MockProductStorer)
	ms.On("ListCategoryPairs", mock.Anything).Return(nil, errors.New("SQLITE_BUSY: database is busy"))
	e := NewEngine(ms, noWait, nil, log.New(&logs, "", 0))

	_, err := e.Categories(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "ListCategoryPairs")
	ms.AssertNumberOfCalls(t, "ListCategoryPairs", 3)
	assert.Contains(t, logs.String(), "ERROR: ListCategoryPairs failed after 3 attempts")
}

func TestEngine_FatalErrorsAreNotRetried(t *testing.T) {
	ms := new(storetest.MockProductStorer)
	fatal := errors.New(`no such table: products`)
	ms.On("ListTagStrings", mock.Anything).Return(nil, fatal)
	e := NewEngine(ms, noWait, nil, nil)

	_, err := e.Tags(context.Background())
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	ms.AssertNumberOfCalls(t, "ListTagStrings", 1)
}

func TestEngine_RetryStopsOnCancel(t *testing.T) {
	ms := new(storetest.MockProductStorer)
	ms.On("CountProducts", mock.Anything).Return(0, errors.New("database is locked"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEngine(ms, RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}, nil, nil)

	_, err := withRetry(ctx, e, "CountProducts", e.store.CountProducts)
	assert.ErrorIs(t, err, context.Canceled)
	ms.AssertNumberOfCalls(t, "CountProducts", 1)
}

func TestRetryPolicy_BackOff(t *testing.T) {
	ctx := context.Background()
	collect := func(b backoff.BackOff) []time.Duration {
		b.Reset()
		var out []time.Duration
		for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
			out = append(out, d)
		}
		return out
	}

	constant := RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond}
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond}, collect(constant.backOff(ctx)))

	doubling := RetryPolicy{MaxAttempts: 4, Backoff: 100 * time.Millisecond, Doubling: true}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, collect(doubling.backOff(ctx)))

	single := RetryPolicy{MaxAttempts: 0}
	assert.Empty(t, collect(single.backOff(ctx)))
}

func TestEngine_Home(t *testing.T) {
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ms := new(storetest.MockProductStorer)
	ms.On("ListProductsByTag", mock.Anything, TagPopular, HomeListSize).
		Return([]domain.Product{{ID: 9, SKU: "P9"}}, nil).Once()
	ms.On("ListProductsByTag", mock.Anything, TagSpecialPrice, HomeListSize).
		Return(nil, nil).Once()
	e := NewEngine(ms, noWait, mockClock, nil)

	home, err := e.Home(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"P9"}, skus(home.Popular))
	assert.NotNil(t, home.SpecialPrices)
	assert.Empty(t, home.SpecialPrices)
	assert.Equal(t, mockClock.Now().UTC(), home.GeneratedAt)
	ms.AssertExpectations(t)
}

func TestEngine_Tags_FromStore(t *testing.T) {
	e := newSQLiteEngine(t,
		domain.ProductInput{SKU: "T1", Tags: PtrTo("popular, new")},
		domain.ProductInput{SKU: "T2", Tags: PtrTo("NEW; special_price")},
	)
	tags, err := e.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Tag{
		{Key: "special_price", Label: "Özel Fiyat"},
		{Key: "popular", Label: "Popüler"},
		{Key: "new", Label: "Yeni"},
	}, tags)
}
