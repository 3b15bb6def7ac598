// Package textnorm produces comparison-stable forms of catalog text so that
// searches ignore letter case and the six Turkish special letters.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FoldPair maps one special letter to its ASCII replacement.
type FoldPair struct {
	From string
	To   string
}

// foldPairs is the single fold table shared by the in-memory matcher and the
// SQL column expression built in the store package.
var foldPairs = []FoldPair{
	{"ş", "s"}, {"Ş", "s"},
	{"ı", "i"}, {"İ", "i"},
	{"ğ", "g"}, {"Ğ", "g"},
	{"ü", "u"}, {"Ü", "u"},
	{"ö", "o"}, {"Ö", "o"},
	{"ç", "c"}, {"Ç", "c"},
}

// combiningDotAbove is left behind when "İ" is lowered outside a Turkish
// locale ("i" + U+0307).
const combiningDotAbove = "\u0307"

var (
	folder        = newFolder()
	separatorRuns = regexp.MustCompile(`[\s,]+`)
	whitespace    = regexp.MustCompile(`\s+`)
	dotlessI      = strings.NewReplacer("ı", "i", combiningDotAbove, "")
)

func newFolder() *strings.Replacer {
	oldnew := make([]string, 0, len(foldPairs)*2+2)
	for _, p := range foldPairs {
		oldnew = append(oldnew, p.From, p.To)
	}
	oldnew = append(oldnew, combiningDotAbove, "")
	return strings.NewReplacer(oldnew...)
}

// FoldPairs returns a copy of the fold table.
func FoldPairs() []FoldPair {
	out := make([]FoldPair, len(foldPairs))
	copy(out, foldPairs)
	return out
}

// Normalize lowercases s with Turkish casing rules and folds ş, ı, ğ, ü, ö, ç
// (and their capitals) to ASCII. Normalize(Normalize(s)) == Normalize(s).
//
//	Normalize("ŞARJLI") == "sarjli"
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// A Caser keeps state between calls and must not be shared across goroutines.
	lowered := cases.Lower(language.Turkish).String(s)
	return folder.Replace(lowered)
}

// Lower lowercases s without folding any letters. It is the "exact" form used
// when the raw query should win over its folded variant.
func Lower(s string) string {
	if s == "" {
		return ""
	}
	return cases.Lower(language.Und).String(s)
}

// CaseKey is the case-insensitive form of s used for exact name comparisons.
// Unlike Normalize it keeps ş, ğ, ü, ö and ç apart from s, g, u, o and c; only
// I, ı, İ and i collapse to "i", since Turkish and other locales case them
// differently.
func CaseKey(s string) string {
	if s == "" {
		return ""
	}
	return dotlessI.Replace(cases.Lower(language.Und).String(s))
}

// Label is Normalize plus collapsing every run of whitespace and commas into a
// single space, so "Somun  Sıkma,, Havalı" and "somun sikma havali" compare equal.
func Label(s string) string {
	return strings.TrimSpace(separatorRuns.ReplaceAllString(Normalize(s), " "))
}

// Compact removes all whitespace from s.
func Compact(s string) string {
	return whitespace.ReplaceAllString(s, "")
}
