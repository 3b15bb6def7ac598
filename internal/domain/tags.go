package domain

import (
	"regexp"
	"strings"
)

var tagSeparators = regexp.MustCompile(`[,;]+`)

// SplitTags splits a comma/semicolon separated tag list into trimmed, non-empty tokens.
func SplitTags(s string) []string {
	parts := tagSeparators.Split(s, -1)
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
