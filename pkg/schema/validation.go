package schema

import (
	"fmt"
	"strings"
)

// Violation is one rejected field of a step document, located by its JSON
// path (e.g. "routing.model", "budget.remaining").
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Violations collects every rejected field so a caller sees all problems
// of a document at once.
type Violations []Violation

func (v *Violations) Add(field, rule, message string) {
	*v = append(*v, Violation{Field: field, Rule: rule, Message: message})
}

// Err folds the violations into one VALIDATION_ERROR, or nil when there
// are none.
func (v Violations) Err() error {
	switch len(v) {
	case 0:
		return nil
	case 1:
		return NewError(ErrCodeValidation, v[0].Message).
			WithDetails(map[string]any{"violations": []Violation(v)})
	}
	msgs := make([]string, len(v))
	for i, x := range v {
		msgs[i] = x.Message
	}
	return NewErrorf(ErrCodeValidation, "%d invalid fields: %s", len(v), strings.Join(msgs, "; ")).
		WithDetails(map[string]any{"violations": []Violation(v)})
}

// Fields maps each rejected field to the rule it broke.
func (v Violations) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, x := range v {
		out[x.Field] = x.Rule
	}
	return out
}

func (x Violation) String() string {
	return fmt.Sprintf("%s (%s): %s", x.Field, x.Rule, x.Message)
}
