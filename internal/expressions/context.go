package expressions

import (
	"encoding/json"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// ExecutionContext holds the outputs of completed steps for one workflow run.
//
// The scheduler is the only writer (Record); handlers only read. Outputs are
// frozen on insert into their JSON form, which backs dotted-path lookups, and
// the decoded copy of it (numbers are float64). A step ID can be recorded once.
// A nil *ExecutionContext behaves as an empty context.
type ExecutionContext struct {
	mu      sync.RWMutex
	runID   string
	outputs map[string]any
	frozen  map[string][]byte
	order   []string
}

// NewExecutionContext creates an empty context for the given workflow run.
func NewExecutionContext(runID string) *ExecutionContext {
	return &ExecutionContext{
		runID:   runID,
		outputs: make(map[string]any),
		frozen:  make(map[string][]byte),
	}
}

// RunID returns the workflow run this context belongs to.
func (c *ExecutionContext) RunID() string {
	if c == nil {
		return ""
	}
	return c.runID
}

// Record stores a completed step's output. Recording the same step twice
// returns a CONFLICT error.
func (c *ExecutionContext) Record(stepID string, output any) error {
	if stepID == "" {
		return schema.NewError(schema.ErrCodeValidation, "step id is empty")
	}

	raw, err := json.Marshal(DeepCopy(output))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"step %q output is not serializable: %s", stepID, err.Error()).
			WithStep(stepID).
			WithCause(err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"step %q output cannot be frozen: %s", stepID, err.Error()).
			WithStep(stepID).
			WithCause(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.outputs[stepID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"step %q output already recorded; outputs are immutable", stepID).WithStep(stepID)
	}
	c.outputs[stepID] = data
	c.frozen[stepID] = raw
	c.order = append(c.order, stepID)
	return nil
}

// Get returns a copy of a step's output.
func (c *ExecutionContext) Get(stepID string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out, ok := c.outputs[stepID]
	if !ok {
		return nil, false
	}
	return DeepCopy(out), true
}

// Lookup resolves a dotted path (e.g. "data.items.0.name") inside a step's
// output. An empty path returns the whole output. Numbers come back as float64.
func (c *ExecutionContext) Lookup(stepID, path string) (any, bool) {
	if path == "" {
		return c.Get(stepID)
	}
	res, ok := c.lookupResult(stepID, path)
	if !ok {
		return nil, false
	}
	return res.Value(), true
}

// lookupText resolves a reference to its embedded string form: strings
// verbatim, everything else as compact JSON.
func (c *ExecutionContext) lookupText(stepID, path string) (string, bool) {
	if path == "" {
		if c == nil {
			return "", false
		}
		c.mu.RLock()
		raw, ok := c.frozen[stepID]
		c.mu.RUnlock()
		if !ok {
			return "", false
		}
		return textOf(gjson.ParseBytes(raw)), true
	}
	res, ok := c.lookupResult(stepID, path)
	if !ok {
		return "", false
	}
	return textOf(res), true
}

func (c *ExecutionContext) lookupResult(stepID, path string) (gjson.Result, bool) {
	if c == nil {
		return gjson.Result{}, false
	}
	c.mu.RLock()
	raw, ok := c.frozen[stepID]
	c.mu.RUnlock()
	if !ok {
		return gjson.Result{}, false
	}

	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return gjson.Result{}, false
	}
	return res, true
}

// StepIDs returns the recorded step IDs in completion order.
func (c *ExecutionContext) StepIDs() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Snapshot returns a copy of all outputs keyed by step ID.
func (c *ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, v := range c.outputs {
		out[id] = DeepCopy(v)
	}
	return out
}

// Len returns the number of recorded outputs.
func (c *ExecutionContext) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.outputs)
}

func textOf(res gjson.Result) string {
	if res.Type == gjson.String {
		return res.Str
	}
	return res.Raw
}
