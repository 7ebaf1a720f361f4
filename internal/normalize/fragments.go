package normalize

// scanFragments extracts balanced brace-delimited substrings from text.
// It is the fallback grammar for extraction payloads that are not valid
// JSON as a whole, e.g. two objects back to back with no enclosing array.
// Braces inside JSON strings are ignored.
func scanFragments(text string) []string {
	var fragments []string

	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closing brace
			}
			depth--
			if depth == 0 && start >= 0 {
				fragments = append(fragments, text[start:i+1])
				start = -1
			}
		}
	}

	return fragments
}
