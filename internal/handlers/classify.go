package handlers

import (
	"strings"
)

// Keyword heuristics. Everything in this file is best-effort: a classifier
// only picks prompt wording and a sampling temperature, never a control-flow
// branch. Rules are checked in order and the first hit wins.

const (
	genTechnical = "technical"
	genReport    = "report"
	genCreative  = "creative"
	genGeneral   = "general"

	toneFormal  = "formal"
	toneNeutral = "neutral"
	toneCasual  = "casual"
)

type keywordRule struct {
	label    string
	keywords []string
}

func classify(text string, rules []keywordRule, fallback string) string {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.label
			}
		}
	}
	return fallback
}

var aggregationRules = []keywordRule{
	{"average", []string{"average", "mean", "avg"}},
	{"sum", []string{"sum", "total"}},
	{"count", []string{"count", "how many", "number of"}},
	{"min", []string{"minimum", "lowest", "smallest", "min "}},
	{"max", []string{"maximum", "highest", "largest", "max "}},
	{"group", []string{"group by", "grouped", "breakdown", "per "}},
}

// classifyAggregation guesses the aggregation function asked for.
func classifyAggregation(text string) string {
	return classify(text, aggregationRules, "summary")
}

var generationRules = []keywordRule{
	{genTechnical, []string{"code", "technical", "api", "documentation", "function", "sql", "specification", "schema"}},
	{genCreative, []string{"story", "poem", "creative", "slogan", "tagline", "marketing", "brainstorm"}},
	{genReport, []string{"report", "analysis", "findings", "overview", "briefing", "quarterly"}},
}

// classifyGeneration guesses the kind of content to generate.
func classifyGeneration(text string) string {
	return classify(text, generationRules, genGeneral)
}

var messageRules = []keywordRule{
	{"email", []string{"email", "e-mail", "mail", "inbox"}},
	{"chat", []string{"slack", "teams", "chat", "channel"}},
	{"sms", []string{"sms", "text message", "phone"}},
	{"notification", []string{"notify", "notification", "alert", "reminder"}},
}

// classifyMessage guesses the delivery medium of a message.
func classifyMessage(text string) string {
	return classify(text, messageRules, "message")
}

var formalityRules = []keywordRule{
	{toneFormal, []string{"formal", "client", "customer", "executive", "official", "legal", "board"}},
	{toneCasual, []string{"casual", "friendly", "informal", "team", "fun", "hey"}},
}

// classifyFormality guesses the tone of a message.
func classifyFormality(text string) string {
	return classify(text, formalityRules, toneNeutral)
}

var enrichmentRules = []keywordRule{
	{"location", []string{"geo", "location", "address", "country", "city"}},
	{"company", []string{"company", "organization", "organisation", "firmographic", "industry"}},
	{"contact", []string{"contact", "phone", "linkedin", "person", "email"}},
	{"sentiment", []string{"sentiment", "tone", "emotion"}},
	{"classification", []string{"category", "categorize", "classify", "tag", "label"}},
}

// classifyEnrichment guesses what an enrich step adds.
func classifyEnrichment(text string) string {
	return classify(text, enrichmentRules, "general")
}
