package catalog

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits bounds the pagination parameters accepted from clients.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
	MaxPage        int
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{DefaultPerPage: 20, MaxPerPage: 200, MaxPage: 1000}

// Filter is a sanitized listing request. Empty strings mean "not given".
type Filter struct {
	Parent  string
	Child   string
	Query   string
	SKU     string
	Page    int
	PerPage int
}

// Offset is the number of items before the current page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

const (
	maxQueryLen = 200
	maxLabelLen = 60
	maxSKULen   = 64
)

var (
	skuPattern    = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)
	skuDisallowed = regexp.MustCompile(`[^A-Za-z0-9._\-]`)
	labelDisallow = regexp.MustCompile(`[^\p{L}\p{N} _\-.]`)
)

// ParseFilter sanitizes listing query parameters. Out-of-range or malformed
// numbers are clamped or defaulted, never rejected.
func ParseFilter(values url.Values, limits Limits) Filter {
	return Filter{
		Parent:  CleanLabel(values.Get("parent")),
		Child:   CleanLabel(values.Get("child")),
		Query:   CleanString(values.Get("q"), maxQueryLen),
		SKU:     CleanSKU(values.Get("sku")),
		Page:    ClampInt(values.Get("page"), 1, limits.MaxPage, 1),
		PerPage: ClampInt(values.Get("per_page"), 1, limits.MaxPerPage, limits.DefaultPerPage),
	}
}

// CleanString strips ASCII control characters, trims, and truncates to maxLen runes.
func CleanString(s string, maxLen int) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	return truncateRunes(s, maxLen)
}

// CleanLabel keeps letters, digits, space, '_', '-' and '.' of a category label.
func CleanLabel(s string) string {
	s = CleanString(s, maxLabelLen)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(labelDisallow.ReplaceAllString(s, ""))
}

// CleanSKU returns s when it is a well-formed SKU, otherwise s with every
// disallowed character removed.
func CleanSKU(s string) string {
	s = strings.TrimSpace(s)
	if skuPattern.MatchString(s) {
		return s
	}
	return truncateRunes(skuDisallowed.ReplaceAllString(s, ""), maxSKULen)
}

// ValidSKU reports whether s is a well-formed SKU.
func ValidSKU(s string) bool {
	return skuPattern.MatchString(s)
}

// ClampInt parses s and clamps it to [min, max]. Empty or non-numeric input
// yields def.
func ClampInt(s string, min, max, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) {
			return def
		}
		switch {
		case f > float64(max):
			return max
		case f < float64(min):
			return min
		}
		i = int(f)
	}
	if i < min {
		return min
	}
	if i > max {
		return max
	}
	return i
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
