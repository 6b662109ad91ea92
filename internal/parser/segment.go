package parser

import (
	"regexp"
	"strings"
)

var segmentBoundary = regexp.MustCompile(`\bTHEN\b|,|\bAND\b`)

// Segment splits normalized text into instruction clauses on THEN, AND and
// commas. Empty clauses are dropped and order is preserved.
func Segment(normalized string) []string {
	parts := segmentBoundary.Split(normalized, -1)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
