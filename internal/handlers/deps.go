package handlers

import (
	"log/slog"
	"time"

	"github.com/AgentsPilot/neuronforge-sub017/internal/expressions"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
	"github.com/AgentsPilot/neuronforge-sub017/internal/validation"
	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// Deps are the collaborators shared by every intent handler.
type Deps struct {
	Provider provider.Provider
	Logger   *slog.Logger
	Policies PolicyTable

	CEL     *expressions.CELEngine
	JQ      *expressions.GoJQEngine
	Expr    *expressions.ExprEngine
	Schemas *validation.SchemaValidator

	// Now is the clock used for latency. Defaults to time.Now.
	Now func() time.Time
}

// NewDeps builds Deps around p with default policies and every expression
// engine.
func NewDeps(p provider.Provider, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Provider: p, Logger: logger}
	if err := d.complete(); err != nil {
		return nil, err
	}
	return d, nil
}

// complete fills unset fields with defaults.
func (d *Deps) complete() error {
	if d.Provider == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler deps: provider is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Policies == nil {
		d.Policies = DefaultPolicies()
	}
	if d.CEL == nil {
		cel, err := expressions.NewCELEngine()
		if err != nil {
			return err
		}
		d.CEL = cel
	}
	if d.JQ == nil {
		d.JQ = expressions.NewGoJQEngine()
	}
	if d.Expr == nil {
		d.Expr = expressions.NewExprEngine()
	}
	if d.Schemas == nil {
		sv, err := validation.NewSchemaValidator()
		if err != nil {
			return err
		}
		d.Schemas = sv
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}
