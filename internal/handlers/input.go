package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/normalize"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
)

// instructionOf returns the first non-empty instruction key.
func instructionOf(input map[string]any) string {
	for _, k := range expressions.InstructionKeys {
		if s, ok := input[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// dataOf returns the step's primary data: the "data" key when present,
// otherwise the payload minus instruction and option keys (a single
// remaining value is returned bare).
func dataOf(input map[string]any) any {
	if v, ok := input["data"]; ok {
		return v
	}
	rest := map[string]any{}
	for k, v := range input {
		if expressions.OptionKeys[k] || isInstruction(k) {
			continue
		}
		rest[k] = v
	}
	switch len(rest) {
	case 0:
		return nil
	case 1:
		for _, v := range rest {
			return v
		}
	}
	return rest
}

func isInstruction(k string) bool {
	for _, ik := range expressions.InstructionKeys {
		if k == ik {
			return true
		}
	}
	return false
}

func stringOpt(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return strings.TrimSpace(s)
}

// stringsOpt reads a string or a list of strings.
func stringsOpt(input map[string]any, key string) []string {
	switch v := input[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// itemsOf returns data as a list: a bare array, or the primary array of an
// object.
func itemsOf(data any) ([]any, bool) {
	if arr, ok := data.([]any); ok {
		return arr, true
	}
	return normalize.PrimaryArray(normalize.Shape(data, ""))
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// firstString returns the first non-empty string under keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// responseText is the text a response stands for: the raw text of a
// fallback, a string value, or compact JSON.
func responseText(v any) string {
	if normalize.IsTextFallback(v) {
		s, _ := v.(map[string]any)["raw"].(string)
		return strings.TrimSpace(s)
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func serialize(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// detectImages collects base64 images from the payload: data URIs anywhere
// in it and objects carrying media_type (or mediaType) plus data.
func detectImages(v any) []provider.Image {
	var out []provider.Image
	var walk func(any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			if img, ok := parseDataURI(x); ok {
				out = append(out, img)
			}
		case map[string]any:
			mt := firstString(x, "media_type", "mediaType", "mime_type")
			data, _ := x["data"].(string)
			if strings.HasPrefix(mt, "image/") && data != "" {
				out = append(out, provider.Image{MediaType: mt, Data: data})
				return
			}
			for _, k := range sortedKeys(x) {
				walk(x[k])
			}
		case []any:
			for _, e := range x {
				walk(e)
			}
		}
	}
	walk(v)
	return out
}

func parseDataURI(s string) (provider.Image, bool) {
	const prefix = "data:image/"
	if !strings.HasPrefix(s, prefix) {
		return provider.Image{}, false
	}
	head, data, ok := strings.Cut(s[len("data:"):], ";base64,")
	if !ok || data == "" {
		return provider.Image{}, false
	}
	return provider.Image{MediaType: head, Data: data}, true
}

// stripGarbage removes control and zero-width characters and collapses
// runs of blank lines and spaces. It returns the cleaned text and the number
// of bytes removed.
func stripGarbage(s string) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	newlines, spaces := 0, 0
	for _, r := range s {
		switch {
		case r == '\n':
			spaces = 0
			newlines++
			if newlines > 2 {
				continue
			}
		case r == ' ' || r == '\t':
			spaces++
			if spaces > 1 {
				continue
			}
			r = ' '
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff' || r == '\ufffd':
			continue
		case unicode.IsControl(r):
			continue
		default:
			newlines, spaces = 0, 0
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	return out, len(s) - len(out)
}
