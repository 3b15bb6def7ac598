package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"  // registers "postgres"
	_ "modernc.org/sqlite" // registers "sqlite"
)

//go:embed migrations
var migrationFiles embed.FS

// Options configures Open.
type Options struct {
	Driver       string
	SQLitePath   string
	BusyTimeout  time.Duration
	PostgresDSN  string
	MaxOpenConns int
}

// Open connects to the configured database and verifies the connection.
// It does not run migrations.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch dialect {
	case DialectSQLite:
		if dir := filepath.Dir(opts.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: failed to create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(opts.SQLitePath, opts.BusyTimeout)
	case DialectPostgres:
		dsn = opts.PostgresDSN
	}

	db, err := sql.Open(dialect.String(), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s database: %w", dialect, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping %s database: %w", dialect, err)
	}

	return NewSQLStore(db, dialect), nil
}

// sqliteDSN enables WAL and a bounded busy timeout on every pooled connection.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())
}

// Migrate applies the embedded migrations for the store's dialect that have
// not been recorded in schema_migrations yet. It returns the applied file names.
func (s *SQLStore) Migrate(ctx context.Context, logger *log.Logger) ([]string, error) {
	files, err := fs.Sub(migrationFiles, "migrations/"+s.dialect.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMigration, s.dialect)
	}
	return s.runMigrations(ctx, files, logger)
}

func (s *SQLStore) runMigrations(ctx context.Context, files fs.FS, logger *log.Logger) ([]string, error) {
	createTable := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`
	if s.dialect == DialectPostgres {
		createTable = strings.Replace(createTable, "DATETIME", "TIMESTAMPTZ", 1)
	}
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("store: failed to create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("store: failed to read migrations directory: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, file := range sqlFiles {
		if applied[file] {
			continue
		}
		content, err := fs.ReadFile(files, file)
		if err != nil {
			return ran, fmt.Errorf("store: failed to read migration %s: %w", file, err)
		}

		err = WithTx(ctx, s.db, func(tx *sql.Tx) error {
			for i, stmt := range splitStatements(string(content)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("store: failed to execute migration %s (statement %d): %w", file, i+1, err)
				}
			}
			_, err := tx.ExecContext(ctx, s.dialect.rebind("INSERT INTO schema_migrations (filename) VALUES (?)"), file)
			return err
		})
		if err != nil {
			return ran, err
		}
		ran = append(ran, file)
		if logger != nil {
			logger.Printf("INFO: migration applied: %s", file)
		}
	}
	return ran, nil
}

func (s *SQLStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("store: failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: failed to scan migration row: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to iterate migration rows: %w", err)
	}
	return applied, nil
}

// splitStatements splits SQL text on ';' outside single-quoted literals.
func splitStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]

		if ch == '\'' {
			if inString && i+1 < len(sqlText) && sqlText[i+1] == '\'' {
				current.WriteByte(ch)
				current.WriteByte(sqlText[i+1])
				i++
				continue
			}
			inString = !inString
		}

		if ch == ';' && !inString {
			if s := strings.TrimSpace(current.String()); s != "" {
				statements = append(statements, s)
			}
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		statements = append(statements, s)
	}
	return statements
}
