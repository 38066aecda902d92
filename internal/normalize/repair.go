package normalize

import (
	"strings"
)

// maxRepairCuts bounds how many trailing fragments decodeRepaired drops
// while looking for a parseable prefix.
const maxRepairCuts = 8

// decodeRepaired repairs s and decodes it. When the repaired text still does
// not parse (typically a dangling key cut off mid-object) the text is cut at
// the last comma and repaired again.
func decodeRepaired(s string) (any, error) {
	candidate := s
	var lastErr error
	for i := 0; i <= maxRepairCuts; i++ {
		v, err := decode(repair(candidate))
		if err == nil {
			return v, nil
		}
		lastErr = err

		cut := strings.LastIndexByte(candidate, ',')
		if cut <= 0 {
			break
		}
		candidate = candidate[:cut]
	}
	return nil, lastErr
}

// repair rewrites common LLM JSON defects into valid JSON:
// trailing commas, unquoted keys and bare words, single-quoted strings,
// Python literals, raw control characters inside strings, unterminated
// strings and unclosed brackets.
func repair(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 8)

	var closers []byte
	inString := false
	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(c)
			case c == '\\':
				escaped = true
				out.WriteByte(c)
			case c == quote:
				inString = false
				out.WriteByte('"')
			case c == '"':
				out.WriteString(`\"`)
			case c == '\n':
				out.WriteString(`\n`)
			case c == '\r':
				out.WriteString(`\r`)
			case c == '\t':
				out.WriteString(`\t`)
			default:
				out.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			inString = true
			quote = c
			out.WriteByte('"')
		case c == '{':
			closers = append(closers, '}')
			out.WriteByte(c)
		case c == '[':
			closers = append(closers, ']')
			out.WriteByte(c)
		case c == '}' || c == ']':
			if !containsByte(closers, c) {
				continue
			}
			for len(closers) > 0 {
				top := closers[len(closers)-1]
				closers = closers[:len(closers)-1]
				trimTrailingComma(&out)
				out.WriteByte(top)
				if top == c {
					break
				}
			}
			if len(closers) == 0 {
				return out.String()
			}
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && isNumberPart(s[j]) {
				j++
			}
			out.WriteString(s[i:j])
			i = j - 1
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if nextNonSpace(s, j) == ':' {
				out.WriteString(`"` + word + `"`)
			} else if lit, ok := literals[word]; ok {
				out.WriteString(lit)
			} else {
				out.WriteString(`"` + word + `"`)
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	if inString {
		if escaped {
			str := out.String()
			out.Reset()
			out.WriteString(str[:len(str)-1])
		}
		out.WriteByte('"')
	}

	str := strings.TrimRight(out.String(), " \t\r\n")
	str = strings.TrimSuffix(str, ",")
	if strings.HasSuffix(str, ":") {
		str += "null"
	}
	out.Reset()
	out.WriteString(str)
	for i := len(closers) - 1; i >= 0; i-- {
		trimTrailingComma(&out)
		out.WriteByte(closers[i])
	}
	return out.String()
}

var literals = map[string]string{
	"true":      "true",
	"false":     "false",
	"null":      "null",
	"True":      "true",
	"False":     "false",
	"None":      "null",
	"undefined": "null",
	"NaN":       "null",
}

func trimTrailingComma(out *strings.Builder) {
	str := out.String()
	trimmed := strings.TrimRight(str, " \t\r\n")
	if !strings.HasSuffix(trimmed, ",") {
		return
	}
	out.Reset()
	out.WriteString(strings.TrimSuffix(trimmed, ","))
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

func containsByte(bs []byte, b byte) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func isNumberPart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}
