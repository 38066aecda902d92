package expressions

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *ExecutionContext {
	t.Helper()
	ec := NewExecutionContext("run-1")
	require.NoError(t, ec.Record("step1", map[string]any{
		"data":  "Q3 revenue rose 12%",
		"count": 42,
		"user":  map[string]any{"name": "Ada", "emails": []any{"ada@example.com", "ada@work.example"}},
	}))
	require.NoError(t, ec.Record("step2", []any{"x", "y"}))
	return ec
}

func TestResolve_TypedWholeString(t *testing.T) {
	ec := newTestContext(t)

	res := Resolve(map[string]any{"n": "{{step1.count}}", "user": "{{ step1.user }}"}, ec)

	assert.Equal(t, 42.0, res.Payload["n"])
	assert.Equal(t, map[string]any{"name": "Ada", "emails": []any{"ada@example.com", "ada@work.example"}}, res.Payload["user"])
	assert.Equal(t, 2, res.References)
	assert.Empty(t, res.Unresolved)
}

func TestResolve_EmbeddedStringifies(t *testing.T) {
	ec := newTestContext(t)

	res := Resolve(map[string]any{
		"prompt": "Summarize: {{step1.data}}",
		"note":   "count={{step1.count}} first={{step1.user.emails[0]}} all={{step2}}",
	}, ec)

	assert.Equal(t, "Summarize: Q3 revenue rose 12%", res.Payload["prompt"])
	assert.Equal(t, `count=42 first=ada@example.com all=["x","y"]`, res.Payload["note"])
}

func TestResolve_UnresolvedLeftVerbatim(t *testing.T) {
	ec := newTestContext(t)

	res := Resolve(map[string]any{
		"a": "{{step9.data}}",
		"b": "hello {{step1.nope}} and {{step9.data}}",
	}, ec)

	assert.Equal(t, "{{step9.data}}", res.Payload["a"])
	assert.Equal(t, "hello {{step1.nope}} and {{step9.data}}", res.Payload["b"])
	assert.ElementsMatch(t, []string{"{{step9.data}}", "{{step1.nope}}"}, res.Unresolved)
}

func TestResolve_NestedStructures(t *testing.T) {
	ec := newTestContext(t)

	res := Resolve(map[string]any{
		"params": map[string]any{
			"to":   []any{"{{step1.user.emails[1]}}"},
			"meta": map[string]any{"who": "{{step1.user.name}}"},
		},
	}, ec)

	params := res.Payload["params"].(map[string]any)
	assert.Equal(t, []any{"ada@work.example"}, params["to"])
	assert.Equal(t, "Ada", params["meta"].(map[string]any)["who"])
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	ec := newTestContext(t)
	in := map[string]any{"x": "{{step1.count}}", "nested": map[string]any{"y": "{{step1.data}}"}}

	_ = Resolve(in, ec)
	assert.Equal(t, "{{step1.count}}", in["x"])
	assert.Equal(t, "{{step1.data}}", in["nested"].(map[string]any)["y"])
}

func TestResolve_AutoPopulate(t *testing.T) {
	ec := newTestContext(t)

	t.Run("empty params", func(t *testing.T) {
		res := Resolve(map[string]any{"prompt": "Summarize everything", "data": map[string]any{}}, ec)
		assert.Equal(t, []string{"step1", "step2"}, res.AutoPopulated)
		assert.Equal(t, []any{"x", "y"}, res.Payload["step2"])
		assert.Equal(t, "Summarize everything", res.Payload["prompt"])
	})

	t.Run("explicit reference wins", func(t *testing.T) {
		res := Resolve(map[string]any{"prompt": "Summarize {{step1.data}}"}, ec)
		assert.Empty(t, res.AutoPopulated)
		assert.NotContains(t, res.Payload, "step2")
	})

	t.Run("declared params skip", func(t *testing.T) {
		in := map[string]any{"prompt": "Summarize", "text": "inline"}
		res := Resolve(in, ec)
		assert.Empty(t, res.AutoPopulated)
		assert.Equal(t, in, res.Payload)
	})

	t.Run("option keys are not params", func(t *testing.T) {
		res := Resolve(map[string]any{"criteria": "only invoices", "tone": "formal"}, ec)
		assert.Equal(t, []string{"step1", "step2"}, res.AutoPopulated)
		assert.Equal(t, "only invoices", res.Payload["criteria"])
	})

	t.Run("existing keys kept", func(t *testing.T) {
		res := Resolve(map[string]any{"step1": ""}, ec)
		assert.Equal(t, "", res.Payload["step1"])
		assert.Equal(t, []string{"step2"}, res.AutoPopulated)
	})

	t.Run("empty context", func(t *testing.T) {
		in := map[string]any{"prompt": "Write a haiku"}
		res := Resolve(in, NewExecutionContext("run-2"))
		assert.Empty(t, res.AutoPopulated)
		assert.Equal(t, in, res.Payload)
	})
}

func TestResolve_NilContext(t *testing.T) {
	res := Resolve(map[string]any{"a": "{{step1.data}}"}, nil)
	assert.Equal(t, "{{step1.data}}", res.Payload["a"])
	assert.Equal(t, []string{"{{step1.data}}"}, res.Unresolved)
}

func TestResolve_DropsFunctionsAndCycles(t *testing.T) {
	ec := newTestContext(t)

	cyclic := map[string]any{"name": "loop"}
	cyclic["self"] = cyclic

	res := Resolve(map[string]any{
		"ref":      "{{step1.count}}",
		"callback": func() {},
		"ch":       make(chan int),
		"cyclic":   cyclic,
	}, ec)

	assert.NotContains(t, res.Payload, "callback")
	assert.NotContains(t, res.Payload, "ch")
	c := res.Payload["cyclic"].(map[string]any)
	assert.Equal(t, "loop", c["name"])
	assert.Nil(t, c["self"])
}

func TestResolve_StructKeepsDataFields(t *testing.T) {
	type record struct {
		Name string
		Hook func()
	}
	res := Resolve(map[string]any{
		"ref":    "{{step1.count}}",
		"record": record{Name: "ada", Hook: func() {}},
	}, newTestContext(t))
	assert.Equal(t, map[string]any{"Name": "ada"}, res.Payload["record"])
}

func TestResolveString(t *testing.T) {
	ec := newTestContext(t)

	v, unresolved := ResolveString("{{step1.count}}", ec)
	assert.Equal(t, 42.0, v)
	assert.Empty(t, unresolved)

	v, unresolved = ResolveString("n={{step3}}", ec)
	assert.Equal(t, "n={{step3}}", v)
	assert.Equal(t, []string{"{{step3}}"}, unresolved)
}

func TestResolve_IdentityProperty(t *testing.T) {
	ec := newTestContext(t)

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("payloads without references are unchanged", prop.ForAll(
		func(m map[string]string, note string) bool {
			in := make(map[string]any, len(m)+1)
			for k, v := range m {
				in[k] = v
			}
			in["note"] = note
			res := Resolve(in, ec)
			if len(res.Payload) != len(in) {
				return false
			}
			for k, v := range in {
				if res.Payload[k] != v {
					return false
				}
			}
			return len(res.AutoPopulated) == 0
		},
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
