package normalize

// spanEnd scans text from start (which must hold open) and returns the index
// of the matching close byte. Brackets inside double-quoted strings are
// ignored. When the span never closes it returns len(text)-1 and false.
func spanEnd(text string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return len(text) - 1, false
}
