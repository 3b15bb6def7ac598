package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/textnorm"
)

// SQLStore implements ProductStorer on top of database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore creates a new SQLStore instance.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB exposes the underlying pool for health checks and migrations.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect reports the SQL flavour of the store.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Close closes the underlying pool.
func (s *SQLStore) Close() error { return s.db.Close() }

const productColumns = `id, sku, parent_category, child_category, title, brand, tags,
	list_price, discount, star_rating, product_description,
	feature1, feature2, feature3, feature4, feature5, feature6, feature7, feature8,
	main_img, img1, img2, img3, img4,
	meta_title, meta_description, schema_description, created_at`

// listingOrder sorts by case-insensitive sku, then id. Postgres compares
// bytewise so the order matches the sqlite default and the in-memory sort.
func (s *SQLStore) listingOrder() string {
	if s.dialect == DialectPostgres {
		return ` ORDER BY LOWER(sku) COLLATE "C" ASC, id ASC`
	}
	return " ORDER BY LOWER(sku) ASC, id ASC"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                                 domain.Product
		parent, child, title, brand, tags sql.NullString
		features                          [domain.MaxFeatures]sql.NullString
		images                            [domain.MaxImages]sql.NullString
	)
	dest := []any{&p.ID, &p.SKU, &parent, &child, &title, &brand, &tags,
		&p.ListPrice, &p.Discount, &p.StarRating, &p.Description}
	for i := range features {
		dest = append(dest, &features[i])
	}
	dest = append(dest, &p.MainImage)
	for i := range images {
		dest = append(dest, &images[i])
	}
	dest = append(dest, &p.MetaTitle, &p.MetaDescription, &p.SchemaDescription, &p.CreatedAt)

	if err := row.Scan(dest...); err != nil {
		return domain.Product{}, err
	}
	p.ParentCategory = parent.String
	p.ChildCategory = child.String
	p.Title = title.String
	p.Brand = brand.String
	p.Tags = tags.String
	p.Features = presentStrings(features[:])
	p.Images = presentStrings(images[:])
	return p, nil
}

func presentStrings(values []sql.NullString) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v.Valid && strings.TrimSpace(v.String) != "" {
			out = append(out, v.String)
		}
	}
	return out
}

func (s *SQLStore) queryProducts(ctx context.Context, q Querier, op, query string, args ...any) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s failed to query products: %w", op, err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: %s failed to scan product row: %w", op, err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s iteration error: %w", op, err)
	}
	return products, nil
}

// buildFilter renders the store-level category filters as a WHERE clause.
func buildFilter(params ListProductsParams) (string, []any) {
	var whereClauses []string
	var queryArgs []any

	if params.Parent != "" {
		whereClauses = append(whereClauses, normalizedExpr("parent_category")+` LIKE ? ESCAPE '\'`)
		queryArgs = append(queryArgs, containsPattern(textnorm.Normalize(params.Parent)))
	}
	if params.Child != "" {
		whereClauses = append(whereClauses, normalizedExpr("child_category")+` LIKE ? ESCAPE '\'`)
		queryArgs = append(queryArgs, containsPattern(textnorm.Normalize(params.Child)))
	}

	if len(whereClauses) == 0 {
		return "", queryArgs
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), queryArgs
}

// --- ProductStorer Implementation ---

func (s *SQLStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	whereCondition, queryArgs := buildFilter(params)

	countQuery := "SELECT COUNT(*) FROM products" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(countQuery), queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}
	if totalCount == 0 || params.Offset >= totalCount {
		return []domain.Product{}, totalCount, nil
	}

	dataQuery := "SELECT " + productColumns + " FROM products" + whereCondition + s.listingOrder()
	if params.Limit > 0 {
		dataQuery += " LIMIT ? OFFSET ?"
		queryArgs = append(queryArgs, params.Limit, params.Offset)
	}

	products, err := s.queryProducts(ctx, s.db, "ListProducts", dataQuery, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

func (s *SQLStore) ListCandidates(ctx context.Context, params ListProductsParams) ([]domain.Product, error) {
	whereCondition, queryArgs := buildFilter(params)
	query := "SELECT " + productColumns + " FROM products" + whereCondition + s.listingOrder()
	return s.queryProducts(ctx, s.db, "ListCandidates", query, queryArgs...)
}

func (s *SQLStore) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE sku = ?"
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.dialect.rebind(query), sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductBySKU failed to scan row: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) ListAllProducts(ctx context.Context, limit, offset int) ([]domain.Product, int, error) {
	totalCount, err := s.CountProducts(ctx)
	if err != nil {
		return nil, 0, err
	}
	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	query := "SELECT " + productColumns + " FROM products ORDER BY id DESC"
	var queryArgs []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		queryArgs = append(queryArgs, limit, offset)
	}
	products, err := s.queryProducts(ctx, s.db, "ListAllProducts", query, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

func (s *SQLStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: CountProducts failed: %w", err)
	}
	return n, nil
}

// inputAssignments lists the columns an input sets, in a fixed order.
func inputAssignments(in domain.ProductInput) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	addString := func(col string, v *string) {
		if v != nil {
			add(col, *v)
		}
	}

	addString("parent_category", in.ParentCategory)
	addString("child_category", in.ChildCategory)
	addString("title", in.Title)
	addString("brand", in.Brand)
	addString("tags", in.Tags)
	if in.ListPrice != nil {
		add("list_price", *in.ListPrice)
	}
	if in.Discount != nil {
		add("discount", *in.Discount)
	}
	if in.StarRating != nil {
		add("star_rating", *in.StarRating)
	}
	addString("product_description", in.Description)
	if in.Features != nil {
		for i := 0; i < domain.MaxFeatures; i++ {
			add(fmt.Sprintf("feature%d", i+1), listValue(in.Features, i))
		}
	}
	addString("main_img", in.MainImage)
	if in.Images != nil {
		for i := 0; i < domain.MaxImages; i++ {
			add(fmt.Sprintf("img%d", i+1), listValue(in.Images, i))
		}
	}
	addString("meta_title", in.MetaTitle)
	addString("meta_description", in.MetaDescription)
	addString("schema_description", in.SchemaDescription)
	return cols, args
}

func listValue(values []string, i int) any {
	if i >= len(values) || strings.TrimSpace(values[i]) == "" {
		return nil
	}
	return values[i]
}

// updateRow applies cols to the product with sku and reports whether it exists.
func (s *SQLStore) updateRow(ctx context.Context, q Querier, sku string, cols []string, args []any) (bool, error) {
	if len(cols) == 0 {
		var n int
		query := s.dialect.rebind("SELECT COUNT(*) FROM products WHERE sku = ?")
		if err := q.QueryRowContext(ctx, query, sku).Scan(&n); err != nil {
			return false, fmt.Errorf("store: failed to look up sku %q: %w", sku, err)
		}
		return n > 0, nil
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	query := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE sku = ?"
	result, err := q.ExecContext(ctx, s.dialect.rebind(query), append(append([]any{}, args...), sku)...)
	if err != nil {
		return false, fmt.Errorf("store: failed to update sku %q: %w", sku, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: failed to get rows affected for sku %q: %w", sku, err)
	}
	return rowsAffected > 0, nil
}

func (s *SQLStore) insertRow(ctx context.Context, q Querier, sku string, cols []string, args []any) error {
	allCols := append([]string{"sku"}, cols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allCols)), ", ")
	query := "INSERT INTO products (" + strings.Join(allCols, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := q.ExecContext(ctx, s.dialect.rebind(query), append([]any{sku}, args...)...); err != nil {
		return fmt.Errorf("store: failed to insert sku %q: %w", sku, err)
	}
	return nil
}

// UpsertProduct updates the provided fields of the product with input.SKU, or
// inserts it when no such product exists.
func (s *SQLStore) UpsertProduct(ctx context.Context, input domain.ProductInput) (domain.UpsertResult, error) {
	if strings.TrimSpace(input.SKU) == "" {
		return domain.UpsertResult{}, ErrEmptySKU
	}
	result := domain.UpsertResult{SKU: input.SKU}
	cols, args := inputAssignments(input)

	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		updated, err := s.updateRow(ctx, tx, input.SKU, cols, args)
		if err != nil {
			return err
		}
		if updated {
			result.Action = domain.ActionUpdated
			return nil
		}
		if err := s.insertRow(ctx, tx, input.SKU, cols, args); err != nil {
			if IsUniqueViolation(err) {
				return ErrProductSKUExists
			}
			return err
		}
		result.Action = domain.ActionInserted
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return result, nil
}

func (s *SQLStore) DeleteProductBySKU(ctx context.Context, sku string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM products WHERE sku = ?"), sku)
	if err != nil {
		return fmt.Errorf("store: DeleteProductBySKU failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProductBySKU failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

const importSavepoint = "import_row"

// BulkUpsert applies inputs in one transaction. Each row runs under its own
// savepoint: a duplicate SKU turns the insert into an update, other row
// failures are collected and the batch continues. A transient failure aborts
// the whole batch so it can be retried.
func (s *SQLStore) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (domain.ImportResult, error) {
	result := domain.ImportResult{Errors: []domain.ImportRowError{}}

	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for i, input := range inputs {
			if strings.TrimSpace(input.SKU) == "" {
				result.Errors = append(result.Errors, domain.ImportRowError{Index: i, Error: ErrEmptySKU.Error()})
				continue
			}

			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+importSavepoint); err != nil {
				return fmt.Errorf("store: BulkUpsert failed to open savepoint: %w", err)
			}
			action, rowErr := s.importRow(ctx, tx, input)
			if rowErr != nil {
				if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+importSavepoint); err != nil {
					return fmt.Errorf("store: BulkUpsert failed to roll back row %d: %w", i, err)
				}
			}
			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+importSavepoint); err != nil {
				return fmt.Errorf("store: BulkUpsert failed to release savepoint: %w", err)
			}

			if rowErr != nil {
				if IsTransient(rowErr) {
					return rowErr
				}
				result.Errors = append(result.Errors, domain.ImportRowError{Index: i, SKU: input.SKU, Error: rowErr.Error()})
				continue
			}
			if action == domain.ActionInserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("store: BulkUpsert failed: %w", err)
	}
	return result, nil
}

func (s *SQLStore) importRow(ctx context.Context, tx *sql.Tx, input domain.ProductInput) (string, error) {
	cols, args := inputAssignments(input)
	err := s.insertRow(ctx, tx, input.SKU, cols, args)
	if err == nil {
		return domain.ActionInserted, nil
	}
	if !IsUniqueViolation(err) {
		return "", err
	}

	// postgres refuses further statements until the failed insert is rewound
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+importSavepoint); err != nil {
		return "", fmt.Errorf("store: failed to rewind insert of sku %q: %w", input.SKU, err)
	}
	updated, err := s.updateRow(ctx, tx, input.SKU, cols, args)
	if err != nil {
		return "", err
	}
	if !updated {
		return "", ErrProductNotFound
	}
	return domain.ActionUpdated, nil
}

func (s *SQLStore) ListCategoryPairs(ctx context.Context) ([]domain.CategoryPair, error) {
	query := `
		SELECT COALESCE(parent_category, ''), COALESCE(child_category, ''), COUNT(*)
		FROM products
		GROUP BY COALESCE(parent_category, ''), COALESCE(child_category, '')`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategoryPairs failed to query: %w", err)
	}
	defer rows.Close()

	pairs := make([]domain.CategoryPair, 0)
	for rows.Next() {
		var c domain.CategoryPair
		if err := rows.Scan(&c.ParentCategory, &c.ChildCategory, &c.Count); err != nil {
			return nil, fmt.Errorf("store: ListCategoryPairs failed to scan row: %w", err)
		}
		pairs = append(pairs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategoryPairs iteration error: %w", err)
	}
	return pairs, nil
}

// RemoveCategory clears the parent or child category of every product whose
// trimmed value equals name ignoring case, and returns the number of products
// changed. Special letters must match: removing "Celik" keeps "Çelik".
func (s *SQLStore) RemoveCategory(ctx context.Context, field CategoryField, name string) (int64, error) {
	var col string
	switch field {
	case CategoryParent:
		col = "parent_category"
	case CategoryChild:
		col = "child_category"
	default:
		return 0, ErrInvalidCategoryType
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	want := textnorm.CaseKey(name)

	var changed int64
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// The folded match narrows the candidates; the exact comparison happens below.
		query := s.dialect.rebind("SELECT id, " + col + " FROM products WHERE " + normalizedExpr("TRIM("+col+")") + " = ?")
		rows, err := tx.QueryContext(ctx, query, textnorm.Normalize(name))
		if err != nil {
			return fmt.Errorf("store: RemoveCategory failed to query: %w", err)
		}
		var ids []int64
		for rows.Next() {
			var (
				id    int64
				value sql.NullString
			)
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return fmt.Errorf("store: RemoveCategory failed to scan row: %w", err)
			}
			if textnorm.CaseKey(strings.TrimSpace(value.String)) == want {
				ids = append(ids, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("store: RemoveCategory iteration error: %w", err)
		}
		rows.Close()

		update := s.dialect.rebind("UPDATE products SET " + col + " = '' WHERE id = ?")
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, update, id); err != nil {
				return fmt.Errorf("store: RemoveCategory failed to update product %d: %w", id, err)
			}
		}
		changed = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *SQLStore) ListTagStrings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tags FROM products WHERE tags IS NOT NULL AND tags <> ''")
	if err != nil {
		return nil, fmt.Errorf("store: ListTagStrings failed to query: %w", err)
	}
	defer rows.Close()

	var lists []string
	for rows.Next() {
		var tags string
		if err := rows.Scan(&tags); err != nil {
			return nil, fmt.Errorf("store: ListTagStrings failed to scan row: %w", err)
		}
		lists = append(lists, tags)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListTagStrings iteration error: %w", err)
	}
	return lists, nil
}

// tagTokenPatterns returns LIKE patterns locating token as a whole entry in a
// space-free tag list separated by ',' or ';'.
func tagTokenPatterns(token string) []any {
	t := escapeLike(token)
	return []any{
		t + ",%", "%," + t, "%," + t + ",%",
		t + ";%", "%;" + t, "%;" + t + ";%",
		"%," + t + ";%", "%;" + t + ",%",
	}
}

func (s *SQLStore) ListProductsByTag(ctx context.Context, token string, limit int) ([]domain.Product, error) {
	token = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(token), " ", ""))
	if token == "" {
		return []domain.Product{}, nil
	}

	expr := "LOWER(REPLACE(COALESCE(tags, ''), ' ', ''))"
	patterns := tagTokenPatterns(token)
	clauses := []string{expr + " = ?"}
	for range patterns {
		clauses = append(clauses, expr+` LIKE ? ESCAPE '\'`)
	}
	queryArgs := append([]any{token}, patterns...)

	query := "SELECT " + productColumns + " FROM products WHERE (" + strings.Join(clauses, " OR ") + ") ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		queryArgs = append(queryArgs, limit)
	}
	return s.queryProducts(ctx, s.db, "ListProductsByTag", query, queryArgs...)
}

// RemoveTag drops tag (case-insensitively) from every product's tag list and
// returns the number of products changed.
func (s *SQLStore) RemoveTag(ctx context.Context, tag string) (int, error) {
	needle := textnorm.Lower(strings.TrimSpace(tag))
	if needle == "" {
		return 0, nil
	}

	type change struct {
		id   int64
		tags string
	}
	var changed int
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query := s.dialect.rebind("SELECT id, tags FROM products WHERE " + normalizedExpr("tags") + ` LIKE ? ESCAPE '\'`)
		rows, err := tx.QueryContext(ctx, query, containsPattern(textnorm.Normalize(needle)))
		if err != nil {
			return fmt.Errorf("store: RemoveTag failed to query: %w", err)
		}
		var changes []change
		for rows.Next() {
			var c change
			if err := rows.Scan(&c.id, &c.tags); err != nil {
				rows.Close()
				return fmt.Errorf("store: RemoveTag failed to scan row: %w", err)
			}
			kept := make([]string, 0)
			removed := false
			for _, t := range domain.SplitTags(c.tags) {
				if textnorm.Lower(t) == needle {
					removed = true
					continue
				}
				kept = append(kept, t)
			}
			if removed {
				c.tags = strings.Join(kept, ", ")
				changes = append(changes, c)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("store: RemoveTag iteration error: %w", err)
		}
		rows.Close()

		update := s.dialect.rebind("UPDATE products SET tags = ? WHERE id = ?")
		for _, c := range changes {
			if _, err := tx.ExecContext(ctx, update, c.tags, c.id); err != nil {
				return fmt.Errorf("store: RemoveTag failed to update product %d: %w", c.id, err)
			}
		}
		changed = len(changes)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping failed: %w", err)
	}
	return nil
}
