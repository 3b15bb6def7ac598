package store

import (
	"fmt"
	"strconv"
	"strings"

	"storefront-catalog/internal/textnorm"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ParseDialect maps a driver name to its Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return DialectSQLite, nil
	case DriverPostgres, "postgresql":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("store: unsupported driver %q", driver)
	}
}

func (d Dialect) String() string {
	if d == DialectPostgres {
		return DriverPostgres
	}
	return DriverSQLite
}

// rebind rewrites '?' placeholders into '$n' for postgres. Queries built in
// this package never carry a literal '?'.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// accentedCapitals are lowered explicitly because SQLite's LOWER only knows
// ASCII. Capitals outside this list and the fold table still compare
// case-sensitively in store-side filters on SQLite.
var accentedCapitals = [][2]string{
	{"Â", "â"}, {"Î", "î"}, {"Û", "û"},
	{"À", "à"}, {"Á", "á"}, {"Ä", "ä"}, {"Å", "å"},
	{"É", "é"}, {"È", "è"}, {"Ê", "ê"}, {"Ë", "ë"},
	{"Í", "í"}, {"Ó", "ó"}, {"Ô", "ô"}, {"Ú", "ú"}, {"Ñ", "ñ"},
}

// normalizedExpr wraps col in the SQL form of textnorm.Normalize: every fold
// pair is replaced first (SQLite's LOWER only knows ASCII), then the accented
// capitals, then the result is lowercased. The fold table is shared with the
// in-memory matcher.
func normalizedExpr(col string) string {
	expr := "COALESCE(" + col + ", '')"
	for _, p := range textnorm.FoldPairs() {
		expr = "REPLACE(" + expr + ", '" + p.From + "', '" + p.To + "')"
	}
	for _, p := range accentedCapitals {
		expr = "REPLACE(" + expr + ", '" + p[0] + "', '" + p[1] + "')"
	}
	return "LOWER(" + expr + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE argument matching s anywhere, with LIKE
// metacharacters in s escaped. Pair it with ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// escapeLike escapes LIKE metacharacters in s.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
