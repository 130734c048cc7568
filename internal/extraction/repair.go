package extraction

import (
	"regexp"
	"strings"
)

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// repairJSON applies a bounded set of mechanical fixes to a response that
// failed to parse: markdown fences are stripped, leading prose before the
// first brace is dropped, trailing commas are removed and the payload is
// truncated to the last structurally closed object. Anything beyond that is
// treated as permanently malformed.
func repairJSON(raw string) string {
	s := stripCodeFences(raw)

	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}

	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return truncateToClosed(s)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// truncateToClosed cuts the input at the point where the outermost object or
// array last returned to depth zero, discarding any unterminated tail.
func truncateToClosed(s string) string {
	depth := 0
	inString := false
	escaped := false
	lastClosed := -1

	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					lastClosed = i
				}
			}
		}
	}

	if lastClosed >= 0 {
		return s[:lastClosed+1]
	}
	return s
}
