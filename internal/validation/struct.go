package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance returns the shared struct validator. Field names in
// reports follow json tags and the "intent" tag checks schema.Intent values.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		_ = v.RegisterValidation("intent", func(fl validator.FieldLevel) bool {
			return schema.Intent(fl.Field().String()).Valid()
		})

		validateInst = v
	})
	return validateInst
}

// Struct validates v's `validate` tags and reports every failing field.
func Struct(v any) schema.Violations {
	var out schema.Violations

	err := validatorInstance().Struct(v)
	if err == nil {
		return out
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		out.Add("", "struct", err.Error())
		return out
	}
	for _, fe := range ves {
		field := fieldName(fe)
		out.Add(field, fe.Tag(), describe(field, fe))
	}
	return out
}

// fieldName drops the root struct name from the namespace:
// "StepContext.routing.model" becomes "routing.model".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "intent":
		return fmt.Sprintf("%s: unknown intent %q", field, fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation for tag '%s'", field, fe.Tag())
	}
}
