package expressions

import (
	"regexp"
	"strings"
)

// InstructionKeys are payload keys that carry the step's instruction rather
// than its parameters. They are ignored when deciding whether to
// auto-populate a payload.
var InstructionKeys = []string{"prompt", "instruction", "goal", "description"}

// OptionKeys configure a handler and are never part of the step data, so
// a payload holding only options and instructions is still auto-populated.
var OptionKeys = map[string]bool{
	"expression": true,
	"jq":         true,
	"predicate":  true,
	"schema":     true,
	"rules":      true,
	"criteria":   true,
	"recipient":  true,
	"channel":    true,
	"tone":       true,
	"type":       true,
	"fields":     true,
	"field":      true,
	"condition":  true,
	"images":     true,
	"image":      true,
}

// refPattern matches {{stepID}} and {{stepID.dotted.path}}; path segments may
// use [N] index syntax.
var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)((?:\.[A-Za-z0-9_\-]+|\[[0-9]+\])*)\s*\}\}`)

// Resolution is the outcome of resolving a payload.
type Resolution struct {
	Payload       map[string]any `json:"payload"`
	References    int            `json:"references"`
	Unresolved    []string       `json:"unresolved,omitempty"`
	AutoPopulated []string       `json:"auto_populated,omitempty"`
}

// Resolve substitutes {{stepK.path}} references in payload with values from
// ec. A string that is exactly one reference receives the typed value; a
// reference embedded in a larger string is stringified. Unresolved references
// stay verbatim and are listed in the result.
//
// When the payload declares no parameters (only instruction keys, option
// keys or empty placeholders) and holds no reference, every recorded output is added under
// its step ID. Explicit references always win over auto-population.
//
// A payload needing neither is returned as is. Otherwise the returned
// payload is a fresh deep copy. Resolve never fails.
func Resolve(payload map[string]any, ec *ExecutionContext) Resolution {
	data, _ := DeepCopy(payload).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	hasRefs := ContainsReference(data)
	auto := !hasRefs && ec.Len() > 0 && paramsEmpty(data)
	if !hasRefs && !auto {
		return Resolution{Payload: payload}
	}

	r := &resolver{ec: ec}
	for k, v := range data {
		data[k] = r.walk(v)
	}

	res := Resolution{
		Payload:    data,
		References: r.refs,
		Unresolved: r.unresolved,
	}
	if auto {
		for _, id := range ec.StepIDs() {
			if _, exists := data[id]; exists {
				continue
			}
			if out, ok := ec.Get(id); ok {
				data[id] = out
				res.AutoPopulated = append(res.AutoPopulated, id)
			}
		}
	}
	return res
}

// ResolveString resolves the references in a single string, with the same
// typed/stringified rules as Resolve.
func ResolveString(s string, ec *ExecutionContext) (any, []string) {
	r := &resolver{ec: ec}
	return r.resolveString(s), r.unresolved
}

// ContainsReference reports whether v holds any reference syntax.
func ContainsReference(v any) bool {
	switch val := v.(type) {
	case string:
		return refPattern.MatchString(val)
	case map[string]any:
		for _, x := range val {
			if ContainsReference(x) {
				return true
			}
		}
	case []any:
		for _, x := range val {
			if ContainsReference(x) {
				return true
			}
		}
	}
	return false
}

type resolver struct {
	ec         *ExecutionContext
	refs       int
	unresolved []string
}

func (r *resolver) walk(v any) any {
	switch val := v.(type) {
	case string:
		return r.resolveString(val)
	case map[string]any:
		for k, x := range val {
			val[k] = r.walk(x)
		}
		return val
	case []any:
		for i, x := range val {
			val[i] = r.walk(x)
		}
		return val
	default:
		return v
	}
}

func (r *resolver) resolveString(s string) any {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	r.refs += len(matches)

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		stepID, path := refParts(s, matches[0])
		v, ok := r.ec.Lookup(stepID, path)
		if !ok {
			r.miss(s)
			return s
		}
		return v
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		token := s[m[0]:m[1]]
		stepID, path := refParts(s, m)
		if text, ok := r.ec.lookupText(stepID, path); ok {
			b.WriteString(text)
		} else {
			r.miss(token)
			b.WriteString(token)
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func (r *resolver) miss(token string) {
	for _, u := range r.unresolved {
		if u == token {
			return
		}
	}
	r.unresolved = append(r.unresolved, token)
}

// refParts extracts the step ID and the gjson path from a match.
func refParts(s string, m []int) (string, string) {
	stepID := s[m[2]:m[3]]
	path := s[m[4]:m[5]]
	path = strings.TrimPrefix(path, ".")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	path = strings.TrimPrefix(path, ".")
	return stepID, path
}

func paramsEmpty(payload map[string]any) bool {
	for k, v := range payload {
		if isInstructionKey(k) || OptionKeys[k] {
			continue
		}
		if !isEmptyPlaceholder(v) {
			return false
		}
	}
	return true
}

func isInstructionKey(k string) bool {
	for _, ik := range InstructionKeys {
		if k == ik {
			return true
		}
	}
	return false
}

func isEmptyPlaceholder(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		for _, x := range val {
			if !isEmptyPlaceholder(x) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
