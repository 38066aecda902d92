package handlers

import (
	"regexp"
	"strings"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

type summarizeBehavior struct{}

// NewSummarizeHandler returns the handler for summarize steps.
func NewSummarizeHandler(deps *Deps) *IntentHandler {
	return newIntentHandler(schema.IntentSummarize, deps, summarizeBehavior{})
}

func (summarizeBehavior) system(*call) string {
	return "You write concise, factual summaries. State the content directly. " +
		"Do not describe what you are doing, do not address the reader and do not add " +
		"introductions or closing remarks. Respond with the summary text only."
}

func (summarizeBehavior) user(c *call) string {
	instruction := c.instruction
	if instruction == "" {
		instruction = "Summarize the following content."
	}
	return userPrompt(instruction, c.data)
}

func (summarizeBehavior) finish(c *call) (any, error) {
	var summary string
	if obj, ok := asObject(c.norm.Value); ok && c.norm.Structured() {
		summary = firstString(obj, "summary", "text", "content")
	}
	if summary == "" {
		summary = strings.TrimSpace(responseText(c.norm.Value))
	}
	summary = stripMetaCommentary(summary)

	original := originalLength(c)
	length := len([]rune(summary))
	ratio := 0.0
	if original > 0 {
		ratio = round2(float64(length) / float64(original))
	}
	return map[string]any{
		"summary":          summary,
		"originalLength":   original,
		"summaryLength":    length,
		"compressionRatio": ratio,
	}, nil
}

func originalLength(c *call) int {
	if c.data != nil {
		return len([]rune(serialize(c.data)))
	}
	return len([]rune(c.instruction))
}

// metaPattern matches sentences that talk about the summary instead of
// summarizing.
var metaPattern = regexp.MustCompile(`(?i)^(here is|here's|here are|below is|this summary|in this summary|the following (is|summary)|i have|i've|i will|i'll|as an ai|sure[,!.]|certainly[,!.]|of course[,!.]|let me|to summarize the (above|following)|i hope|hope this helps|let me know)`)

// stripMetaCommentary drops narrative sentences about the summary itself.
func stripMetaCommentary(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		var sentences []string
		for _, s := range splitSentences(line) {
			if metaPattern.MatchString(strings.TrimSpace(s)) {
				continue
			}
			sentences = append(sentences, s)
		}
		joined := strings.TrimSpace(strings.Join(sentences, ""))
		if joined == "" && strings.TrimSpace(line) != "" {
			continue
		}
		kept = append(kept, joined)
	}
	return strings.TrimSpace(collapseBlankLines(strings.Join(kept, "\n")))
}

// splitSentences splits after '.', '!' or '?' followed by a space, keeping
// the terminator and the space with the sentence.
func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '.', '!', '?', ':':
			if i+1 < len(line) && line[i+1] == ' ' {
				out = append(out, line[start:i+2])
				start = i + 2
				i++
			}
		}
	}
	if start < len(line) {
		out = append(out, line[start:])
	}
	return out
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
