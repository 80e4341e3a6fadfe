package app

import (
	"regexp"
	"strings"
)

// Span attributes are capped so a bulky teams JSONB literal cannot blow up
// the trace payload.
const tracedQueryLimit = 512

var collapseWhitespace = regexp.MustCompile(`\s+`)

func formatDBQueryForTrace(query string) string {
	flattened := collapseWhitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	if len(flattened) > tracedQueryLimit {
		return flattened[:tracedQueryLimit] + "..."
	}

	return flattened
}
