package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-catalog/internal/domain"
)

// Helper function to create a mock DB and SQLStore for testing
func newMockDBAndStore(t *testing.T, dialect Dialect) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewSQLStore(db, dialect)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}

func domainInput(sku string, title, brand *string) domain.ProductInput {
	return domain.ProductInput{SKU: sku, Title: title, Brand: brand}
}

var productColumnNames = []string{
	"id", "sku", "parent_category", "child_category", "title", "brand", "tags",
	"list_price", "discount", "star_rating", "product_description",
	"feature1", "feature2", "feature3", "feature4", "feature5", "feature6", "feature7", "feature8",
	"main_img", "img1", "img2", "img3", "img4",
	"meta_title", "meta_description", "schema_description", "created_at",
}

func addProductRow(rows *sqlmock.Rows, id int64, sku, parent, child, title string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, sku, parent, child, title, "Brand", "popular",
		"199.90", nil, 4.5, "desc",
		"f1", nil, nil, nil, nil, nil, nil, nil,
		"main.jpg", "a.jpg", nil, "", nil,
		nil, nil, nil, now)
}

func TestSQLStore_ListProducts_PostgresParentFilter(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectPostgres)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	countQuery := `SELECT COUNT\(\*\) FROM products WHERE LOWER\(.*parent_category.*\) LIKE \$1 ESCAPE`
	mock.ExpectQuery(countQuery).
		WithArgs("%havali el aletleri%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	dataQuery := `SELECT id, sku, .* FROM products WHERE .* LIKE \$1 ESCAPE .* ORDER BY LOWER\(sku\) COLLATE "C" ASC, id ASC LIMIT \$2 OFFSET \$3`
	rows := addProductRow(sqlmock.NewRows(productColumnNames), 1, "A1", "Havalı El Aletleri", "Somun Sıkma", "Tabanca", now)
	mock.ExpectQuery(dataQuery).
		WithArgs("%havali el aletleri%", 1, 0).
		WillReturnRows(rows)

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Parent: "HAVALI El Aletleri", Limit: 1})

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, products, 1)
	assert.Equal(t, "A1", products[0].SKU)
	assert.Equal(t, "Havalı El Aletleri", products[0].ParentCategory)
	assert.Equal(t, []string{"f1"}, products[0].Features)
	assert.Equal(t, []string{"a.jpg"}, products[0].Images)
	assert.Equal(t, "199.9", products[0].ListPrice.Decimal.String())
	assert.False(t, products[0].Discount.Valid)
	require.NotNil(t, products[0].StarRating)
	assert.Equal(t, 4.5, *products[0].StarRating)

	require.NoError(t, mock.ExpectationsWereMet(), "SQLmock expectations were not met")
}

func TestSQLStore_ListProducts_EmptySkipsDataQuery(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectSQLite)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 20})

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, products)
	assert.Empty(t, products)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListProducts_CountError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectSQLite)
	defer db.Close()

	dbErr := errors.New("database is locked")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).WillReturnError(dbErr)

	_, _, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 20})

	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.True(t, IsTransient(err), "wrapped lock error should stay transient")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetProductBySKU_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectSQLite)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, sku, .* FROM products WHERE sku = \?`).
		WithArgs("NOPE").
		WillReturnError(sql.ErrNoRows)

	product, err := store.GetProductBySKU(context.Background(), "NOPE")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound), "Error should be ErrProductNotFound")
	assert.Nil(t, product)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteProductBySKU(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectPostgres)
	defer db.Close()

	query := regexp.QuoteMeta("DELETE FROM products WHERE sku = $1")
	mock.ExpectExec(query).WithArgs("A1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("A2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteProductBySKU(context.Background(), "A1"))
	err := store.DeleteProductBySKU(context.Background(), "A2")
	assert.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpsertProduct_UpdateThenInsert(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectPostgres)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET title = $1, brand = $2 WHERE sku = $3")).
		WithArgs("Yeni", "Acme", "NEW-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products (sku, title, brand) VALUES ($1, $2, $3)")).
		WithArgs("NEW-1", "Yeni", "Acme").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	result, err := store.UpsertProduct(context.Background(), domainInput("NEW-1", PtrTo("Yeni"), PtrTo("Acme")))

	require.NoError(t, err)
	assert.Equal(t, "inserted", result.Action)
	assert.Equal(t, "NEW-1", result.SKU)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpsertProduct_RollsBackOnError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t, DialectSQLite)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET title = ? WHERE sku = ?")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.UpsertProduct(context.Background(), domainInput("X", PtrTo("t"), nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpsertProduct_EmptySKU(t *testing.T) {
	db, _, store := newMockDBAndStore(t, DialectSQLite)
	defer db.Close()

	_, err := store.UpsertProduct(context.Background(), domainInput("  ", nil, nil))
	assert.ErrorIs(t, err, ErrEmptySKU)
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y LIKE ? LIMIT ?"
	assert.Equal(t, q, DialectSQLite.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y LIKE $2 LIMIT $3", DialectPostgres.rebind(q))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestNormalizedExpr_CoversFoldTable(t *testing.T) {
	expr := normalizedExpr("title")
	assert.True(t, strings.HasPrefix(expr, "LOWER("))
	assert.Equal(t, 12+len(accentedCapitals), strings.Count(expr, "REPLACE("))
	assert.Contains(t, expr, "COALESCE(title, '')")
	assert.Contains(t, expr, "'İ', 'i'")
	assert.Contains(t, expr, "'Â', 'â'")
}

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%special\_price%`, containsPattern("special_price"))
	assert.Equal(t, `%100\%%`, containsPattern("100%"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x TEXT DEFAULT ';');\n\nINSERT INTO a VALUES ('it''s; fine');\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT ';')", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES ('it''s; fine')", stmts[1])
}
