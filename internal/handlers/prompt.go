package handlers

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const jsonOnly = "Respond with JSON only. Do not wrap it in prose."

// systemPrompt joins the intent policy text with the memory sections.
func systemPrompt(policy string, mem *MemoryContext) string {
	if mem.Empty() {
		return policy
	}
	return policy + "\n\n" + renderMemory(mem)
}

// renderMemory formats memory as readable sections.
func renderMemory(m *MemoryContext) string {
	var b strings.Builder
	b.WriteString("## Context from previous runs\n")

	if m.Summary != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(m.Summary))
		b.WriteString("\n")
	}

	if len(m.Facts) > 0 {
		b.WriteString("\nKnown facts:\n")
		for _, f := range m.Facts {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(f))
		}
	}

	if len(m.Preferences) > 0 {
		b.WriteString("\nUser preferences:\n")
		keys := make([]string, 0, len(m.Preferences))
		for k := range m.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, inlineValue(m.Preferences[k]))
		}
	}

	if len(m.RecentRuns) > 0 {
		b.WriteString("\nRecent runs:\n")
		for _, r := range m.RecentRuns {
			line := "- " + r.RunID
			var tags []string
			if r.Outcome != "" {
				tags = append(tags, r.Outcome)
			}
			if !r.CompletedAt.IsZero() {
				tags = append(tags, r.CompletedAt.UTC().Format(time.DateOnly))
			}
			if len(tags) > 0 {
				line += " (" + strings.Join(tags, ", ") + ")"
			}
			if r.Summary != "" {
				line += ": " + strings.TrimSpace(r.Summary)
			}
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// userPrompt is the instruction followed by the step data.
func userPrompt(instruction string, data any, extra ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instruction))
	for _, e := range extra {
		if e == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(e)
	}
	if data != nil {
		b.WriteString("\n\nData:\n")
		b.WriteString(renderData(data))
	}
	return strings.TrimSpace(b.String())
}

// renderData prints strings verbatim and everything else as indented JSON.
func renderData(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func inlineValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "none"
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
