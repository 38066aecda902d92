// Package normalize turns free-form provider output into canonical structured
// values. It never fails: text that cannot be parsed degrades to a wrapped
// text value.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"
)

// Strategy names reported in Result.Strategy.
const (
	StrategyDirect         = "direct"
	StrategyRepaired       = "repaired"
	StrategyObject         = "object"
	StrategyObjectRepaired = "object_repaired"
	StrategyArray          = "array"
	StrategyArrayRepaired  = "array_repaired"
	StrategyText           = "text"
)

// FormatText is the format tag of the text fallback value.
const FormatText = "text"

var (
	errNotApplicable = errors.New("not applicable")
	errNoCandidate   = errors.New("no candidate")
)

// Options tune shape normalization.
type Options struct {
	// DeclaredOutputKey, when set, is added as an alias for the primary
	// array of the parsed value.
	DeclaredOutputKey string
}

// Result is the outcome of normalizing one response.
type Result struct {
	Value      any    `json:"value"`
	Strategy   string `json:"strategy"`
	ParseError bool   `json:"parse_error"`
}

// Structured reports whether the response was parsed into JSON data.
func (r Result) Structured() bool {
	return r.Strategy != StrategyText
}

// attempt is one tier of the chain. It returns the parsed value and the
// strategy name that produced it.
type attempt func(text string) (any, string, error)

var chain = []attempt{
	parseDirect,
	parseRepaired,
	parseObject,
	parseArray,
}

// Normalize runs the parse chain over text and shapes the first success.
func Normalize(text string, opts Options) Result {
	for _, try := range chain {
		v, strategy, err := try(text)
		if err != nil {
			continue
		}
		return Result{Value: Shape(v, opts.DeclaredOutputKey), Strategy: strategy}
	}

	parseErr := strings.ContainsAny(text, "{[")
	return Result{
		Value:      TextFallback(text, parseErr),
		Strategy:   StrategyText,
		ParseError: parseErr,
	}
}

// TextFallback wraps unparseable text.
func TextFallback(text string, parseErr bool) map[string]any {
	return map[string]any{
		"raw":        text,
		"format":     FormatText,
		"parseError": parseErr,
	}
}

// IsTextFallback reports whether v is a value produced by TextFallback.
func IsTextFallback(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasRaw := m["raw"]
	return hasRaw && m["format"] == FormatText
}

func parseDirect(text string) (any, string, error) {
	trimmed := strings.TrimSpace(text)
	if !startsStructured(trimmed) {
		return nil, "", errNotApplicable
	}
	v, err := decode(trimmed)
	return v, StrategyDirect, err
}

func parseRepaired(text string) (any, string, error) {
	trimmed := strings.TrimSpace(text)
	if !startsStructured(trimmed) {
		return nil, "", errNotApplicable
	}
	v, err := decodeRepaired(trimmed)
	return v, StrategyRepaired, err
}

func parseObject(text string) (any, string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, "", errNoCandidate
	}
	// An object nested in an earlier array belongs to the array tier. A
	// bracket that never closes only claims the object when nothing but
	// whitespace separates them (a truncated array of objects).
	if a := strings.IndexByte(text, '['); a >= 0 && a < start {
		end, closed := spanEnd(text, a, '[', ']')
		if closed && end > start {
			return nil, "", errNotApplicable
		}
		if !closed && strings.TrimSpace(text[a+1:start]) == "" {
			return nil, "", errNotApplicable
		}
	}
	return parseCandidate(text, start, '{', '}', StrategyObject, StrategyObjectRepaired)
}

func parseArray(text string) (any, string, error) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil, "", errNoCandidate
	}
	return parseCandidate(text, start, '[', ']', StrategyArray, StrategyArrayRepaired)
}

func parseCandidate(text string, start int, open, close byte, plain, repaired string) (any, string, error) {
	end, closed := spanEnd(text, start, open, close)
	candidate := text[start:]
	if closed {
		candidate = text[start : end+1]
		if v, err := decode(candidate); err == nil {
			return v, plain, nil
		}
	}
	v, err := decodeRepaired(candidate)
	return v, repaired, err
}

func startsStructured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func decode(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
