package engine

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

// InputExpander renders a provided value or a declared default.
type InputExpander func(raw string) (string, error)

// ResolvedInputs is the inputs context handed to a composite.
type ResolvedInputs struct {
	Values *model.ContextValue
	// Warnings lists undeclared and deprecated inputs that were provided.
	Warnings []string
}

// ResolveInputs merges provided values with the declared defaults. Provided
// keys are matched to declarations case-insensitively and stored under the
// declared name; undeclared keys are kept as given. A required input without
// a value or default is an error. expand may be nil for literal values.
func ResolveInputs(specs config.InputSpecs, provided config.Mapping, expand InputExpander) (ResolvedInputs, error) {
	if expand == nil {
		expand = func(raw string) (string, error) { return raw, nil }
	}

	out := ResolvedInputs{Values: model.NewMapping()}
	seen := make(map[string]bool, len(provided))

	for _, kv := range provided {
		name := kv.Key
		spec, declared := specs.Lookup(name)
		if declared {
			name = spec.Name
			if spec.DeprecationMessage != "" {
				out.Warnings = append(out.Warnings, fmt.Sprintf("input %q is deprecated: %s", name, spec.DeprecationMessage))
			}
		} else {
			out.Warnings = append(out.Warnings, fmt.Sprintf("unexpected input %q", name))
		}

		value, err := expand(kv.Value)
		if err != nil {
			return ResolvedInputs{}, compositorerrors.NewEvaluationError(compositorerrors.EvalInput, kv.Value, err)
		}
		out.Values.Set(name, model.String(value))
		seen[strings.ToLower(name)] = true
	}

	for _, spec := range specs {
		if seen[strings.ToLower(spec.Name)] {
			continue
		}
		if spec.Default == "" {
			if spec.Required {
				return ResolvedInputs{}, compositorerrors.NewValidationError("inputs."+spec.Name, "required input not provided", nil)
			}
			out.Values.Set(spec.Name, model.String(""))
			continue
		}
		value, err := expand(spec.Default)
		if err != nil {
			return ResolvedInputs{}, compositorerrors.NewEvaluationError(compositorerrors.EvalInput, spec.Default, err)
		}
		out.Values.Set(spec.Name, model.String(value))
	}

	return out, nil
}
