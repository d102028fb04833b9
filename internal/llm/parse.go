package llm

import "strings"

// Models frequently wrap structured payloads in prose or fenced code blocks.
// ExtractJSONObject locates the first balanced {...} block in s, respecting
// string literals and escapes, and returns it with ok=false when none exists.
func ExtractJSONObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

// ExtractJSONArray locates the first balanced [...] block in s.
func ExtractJSONArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

// StripCodeFence removes a leading/trailing markdown code fence if present.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the optional language tag on the opening fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func extractBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
