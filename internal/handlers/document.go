package handlers

import (
	"encoding/json"
	"sort"

	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/validation"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// stepDocument is the wire form of a step accepted by the CLI and the MCP
// server: a StepContext plus the prior outputs of the run.
type stepDocument struct {
	StepContext
	Outputs map[string]any `json:"outputs,omitempty"`
}

// DecodeStep validates raw against the step document schema and decodes
// it. Prior outputs are recorded into a fresh ExecutionContext in step-id
// order.
func DecodeStep(raw []byte, sv *validation.SchemaValidator) (*StepContext, error) {
	if sv != nil {
		if err := sv.ValidateStepDocument(raw); err != nil {
			return nil, err
		}
	}

	var doc stepDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode step document").WithCause(err)
	}

	sc := doc.StepContext

	ec := expressions.NewExecutionContext(sc.RunID)
	ids := make([]string, 0, len(doc.Outputs))
	for id := range doc.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ec.Record(id, doc.Outputs[id]); err != nil {
			return nil, err
		}
	}
	sc.Execution = ec
	return &sc, nil
}
