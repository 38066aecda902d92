package expressions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type hooked struct {
	Name string
	Hook func()
	Done chan struct{}
}

type Base struct {
	ID string `json:"id"`
}

type tagged struct {
	Base
	Skip string `json:"-"`
	Note string `json:"note,omitempty"`
}

type ts2 struct{ t time.Time }

func (d ts2) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.t.Format("2006-01-02"))
}

func TestDeepCopy(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"scalar", 3, 3},
		{"typed map", map[string]int{"a": 1}, map[string]any{"a": 1}},
		{"int keys", map[int]string{7: "x"}, map[string]any{"7": "x"}},
		{"string slice", []string{"a", "b"}, []any{"a", "b"}},
		{"array", [2]int{1, 2}, []any{1, 2}},
		{"struct", sample{Name: "n", Count: 2}, map[string]any{"name": "n", "count": 2}},
		{"pointer", &sample{Name: "p"}, map[string]any{"name": "p", "count": 0}},
		{"struct with func field", hooked{Name: "ada", Hook: func() {}}, map[string]any{"Name": "ada"}},
		{"embedded and tags", tagged{Base: Base{ID: "e"}, Skip: "x", Note: ""}, map[string]any{"id": "e"}},
		{"marshaler", ts2{ts}, "2026-01-02"},
		{"raw json", json.RawMessage(`{"a":[1]}`), map[string]any{"a": []any{1.0}}},
		{"time", ts, ts},
		{"func in slice", []any{1, func() {}, 2}, []any{1, 2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeepCopy(tc.in))
		})
	}
}

func TestDeepCopy_SharedButAcyclic(t *testing.T) {
	shared := map[string]any{"v": 1}
	out := DeepCopy(map[string]any{"a": shared, "b": shared}).(map[string]any)

	assert.Equal(t, map[string]any{"v": 1}, out["a"])
	assert.Equal(t, map[string]any{"v": 1}, out["b"])
}

func TestDeepCopy_CyclicSlice(t *testing.T) {
	s := make([]any, 2)
	s[0] = "head"
	s[1] = s

	out := DeepCopy(s).([]any)
	assert.Equal(t, "head", out[0])
	assert.Nil(t, out[1])
}
