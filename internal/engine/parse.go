package engine

// extractJSONObject returns the first balanced {...} object in text.
// Models often wrap JSON in prose or markdown fences; everything outside
// the first balanced object is ignored.
func extractJSONObject(text string) (string, bool) {
	return extractBalanced(text, '{', '}')
}

// extractJSONArray returns the first balanced [...] array in text.
func extractJSONArray(text string) (string, bool) {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, open, close byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start == -1 {
			if ch == open {
				start = i
				depth = 1
			}
			continue
		}
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
