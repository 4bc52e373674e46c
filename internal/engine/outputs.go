package engine

import (
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/expression"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

// OutputEvaluator harvests a composite's declared outputs into the output
// table of the composite step.
type OutputEvaluator struct{}

// NewOutputEvaluator creates an output evaluator.
func NewOutputEvaluator() *OutputEvaluator {
	return &OutputEvaluator{}
}

// Publish evaluates every output against a snapshot of parent's values in
// which steps resolves to the composite's own scope. An output is skipped when
// its name is blank, or its value resolves to nothing or to the empty string.
// Sequences and mappings are published as JSON. A failing expression is
// recorded on parent and does not change its result.
func (o *OutputEvaluator) Publish(parent *ExecutionContext, specs config.OutputSpecs) {
	if len(specs) == 0 {
		return
	}
	snap := o.Snapshot(parent)

	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		value, err := parent.Runtime.Evaluator.Evaluate(spec.Value, snap)
		if err != nil {
			parent.RecordError(compositorerrors.NewEvaluationError(compositorerrors.EvalOutput, spec.Value, err))
			continue
		}
		if isEmptyOutput(value) {
			parent.Logger.Debug("output " + name + " is empty, not published")
			continue
		}
		parent.SetOutput(name, value.Str())
	}
}

// Snapshot builds the flattened view outputs are evaluated against.
func (o *OutputEvaluator) Snapshot(parent *ExecutionContext) expression.Snapshot {
	values := cloneValues(parent.Values)
	values.Set(ContextSteps, parent.Runtime.Steps.ContextValue(parent.ChildScope()))

	snap := parent.Snapshot()
	snap.Values = values
	return snap
}

func isEmptyOutput(value *model.ContextValue) bool {
	if value == nil {
		return true
	}
	return value.Kind() == model.KindString && value.Str() == ""
}
