package schema

import "strings"

// Intent is the semantic category of a workflow step. The set is closed:
// every value binds to exactly one handler.
type Intent string

const (
	IntentExtract     Intent = "extract"
	IntentSummarize   Intent = "summarize"
	IntentGenerate    Intent = "generate"
	IntentValidate    Intent = "validate"
	IntentSend        Intent = "send"
	IntentTransform   Intent = "transform"
	IntentConditional Intent = "conditional"
	IntentAggregate   Intent = "aggregate"
	IntentFilter      Intent = "filter"
	IntentEnrich      Intent = "enrich"
)

var allIntents = []Intent{
	IntentExtract,
	IntentSummarize,
	IntentGenerate,
	IntentValidate,
	IntentSend,
	IntentTransform,
	IntentConditional,
	IntentAggregate,
	IntentFilter,
	IntentEnrich,
}

// AllIntents returns every known intent in declaration order.
func AllIntents() []Intent {
	out := make([]Intent, len(allIntents))
	copy(out, allIntents)
	return out
}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	for _, known := range allIntents {
		if i == known {
			return true
		}
	}
	return false
}

func (i Intent) String() string {
	return string(i)
}

// ParseIntent converts a string into a known Intent. Matching is case-insensitive.
func ParseIntent(s string) (Intent, error) {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", NewErrorf(ErrCodeValidation, "unknown intent %q", s).
			WithDetails(map[string]any{"known": allIntents})
	}
	return i, nil
}
