package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Predefined errors for store operations
var (
	ErrProductNotFound      = errors.New("store: product not found")
	ErrProductSKUExists     = errors.New("store: product SKU already exists")
	ErrInvalidCategoryType  = errors.New("store: category type must be parent or child")
	ErrEmptySKU             = errors.New("store: sku is empty")
	ErrUnsupportedMigration = errors.New("store: no migrations for dialect")
)

// transientMarkers catch lock/busy/I-O failures from drivers that do not
// expose a structured code.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"database disk image is malformed",
	"busy",
	"i/o error",
	"unable to open database file",
	"connection reset by peer",
	"broken pipe",
}

// IsTransient reports whether err is a lock, busy or I/O class failure that is
// expected to succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_PROTOCOL:
			return true
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" { // connection exception
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "57P03":
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err is a duplicate business-key failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
