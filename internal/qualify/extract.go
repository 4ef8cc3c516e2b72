package qualify

import (
	"encoding/json"
	"strings"
)

// ExtractJSON locates the first balanced JSON object or array in text and
// returns it. Markdown code fences are removed first; prose before and after
// the value is ignored. Candidates that balance but are not valid JSON are
// skipped and the scan continues.
func ExtractJSON(text string) (string, bool) {
	text = stripFences(text)
	for start := 0; start < len(text); start++ {
		c := text[start]
		if c != '{' && c != '[' {
			continue
		}
		end, ok := matchBracket(text, start)
		if !ok {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "```") {
			// Keep anything after the fence on the same line, e.g. "```{...}".
			rest := strings.TrimLeft(strings.TrimPrefix(trimmed, "```"), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
			rest = strings.TrimSuffix(strings.TrimSpace(rest), "```")
			if rest != "" {
				out = append(out, rest)
			}
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// matchBracket returns the index of the bracket closing the one at start,
// skipping brackets inside string literals.
func matchBracket(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
