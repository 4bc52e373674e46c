package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/expression"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

const (
	eventStepStarted   = events.EventStepStarted
	eventStepCompleted = events.EventStepCompleted
	eventStepSkipped   = events.EventStepSkipped
)

const defaultCondition = "success()"

// Composite runs the steps of one stage of a composite definition strictly in
// order, halting on the first Failed or Cancelled result.
type Composite struct {
	Steps   []config.StepSpec
	Outputs config.OutputSpecs
	Stage   config.Stage
	// Status seeds the status functions, e.g. a failure carried over from an
	// earlier stage.
	Status expression.Status

	executor *StepExecutor
	outputs  *OutputEvaluator
}

// NewComposite creates the orchestrator for one stage of a manifest.
func NewComposite(manifest *config.Manifest, stage config.Stage) *Composite {
	return &Composite{
		Steps:    manifest.Runs.Steps,
		Outputs:  manifest.Outputs,
		Stage:    stage,
		executor: NewStepExecutor(),
		outputs:  NewOutputEvaluator(),
	}
}

// Run implements Runnable. The terminal result is written to parent.Result and
// parent.Outcome; Run itself never fails.
func (c *Composite) Run(ctx context.Context, parent *ExecutionContext) error {
	result, _ := c.Execute(ctx, parent)
	parent.Result = result
	parent.Outcome = result
	return nil
}

// Execute runs the stage and returns the terminal result together with the
// number of steps that executed. Faults escaping a step are recovered, logged
// and turned into a Failed result. A step reached after the shared signal is
// done fails as timed out and halts the stage.
func (c *Composite) Execute(ctx context.Context, parent *ExecutionContext) (result model.Outcome, executed int) {
	defer func() {
		if r := recover(); r != nil {
			fault := compositorerrors.NewScopedExecutionError(parent.ScopeName, parent.ContextName, fmt.Errorf("composite step fault: %v", r))
			parent.RecordError(fault)
			result = model.Failed
		}
	}()

	if c.executor == nil {
		c.executor = NewStepExecutor()
	}
	if c.outputs == nil {
		c.outputs = NewOutputEvaluator()
	}
	if ctx == nil {
		ctx = parent.Context
	}

	rt := parent.Runtime
	scope := parent.ChildScope()
	rt.Steps.EnsureScope(scope)

	start := time.Now()
	result = model.Succeeded
	status := c.Status

	for i, step := range c.Steps {
		if step.StageOrDefault() != c.stage() {
			continue
		}
		expired := ctx.Err() != nil

		child := rt.Tree.Child(parent, step, i)
		child.status = status

		var (
			run bool
			err error
		)
		if !expired {
			run, err = c.shouldRun(child)
		}
		switch {
		case expired:
			child.RecordError(compositorerrors.NewScopedExecutionError(child.ScopeName, child.ContextName, compositorerrors.ErrStepTimedOut))
			child.Result = model.Failed
			child.Outcome = model.Failed
			child.DisplayName = step.DefaultLabel()
		case err != nil:
			child.RecordError(compositorerrors.NewEvaluationError(compositorerrors.EvalCondition, step.If, err))
			child.Result = model.Failed
			child.Outcome = model.Failed
			child.DisplayName = step.DefaultLabel()
		case !run:
			child.Result = model.Skipped
			child.Outcome = model.Skipped
			child.DisplayName = step.DefaultLabel()
			c.record(rt, child)
			child.Logger.Debug("condition evaluated to false, skipping")
			rt.publish(ctx, eventFor(child, eventStepSkipped))
			continue
		default:
			c.executor.Run(child)
		}

		executed++
		c.record(rt, child)
		rt.publish(ctx, eventFor(child, eventStepCompleted))

		result = child.Result
		if result == model.Failed {
			status.Failed = true
			child.Logger.Info("step failed, halting composite")
			break
		}
		if result == model.Cancelled {
			child.Logger.Info("step cancelled, halting composite")
			break
		}
	}

	if executed > 0 {
		c.outputs.Publish(parent, c.Outputs)
	}

	rt.publish(ctx, events.Event{
		Type:     events.EventCompositeCompleted,
		Scope:    parent.ScopeName,
		StepID:   parent.ContextName,
		Stage:    string(c.stage()),
		Result:   result,
		Outcome:  result,
		Outputs:  parent.OutputsSnapshot(),
		Duration: time.Since(start),
	})

	return result, executed
}

func (c *Composite) stage() config.Stage {
	if c.Stage == "" {
		return config.StageMain
	}
	return c.Stage
}

// shouldRun evaluates the step condition. Conditions that do not call a status
// function are implicitly combined with success().
func (c *Composite) shouldRun(child *ExecutionContext) (bool, error) {
	condition := expression.Strip(child.Step.If)
	switch {
	case condition == "":
		condition = defaultCondition
	case !expression.HasStatusFunction(condition):
		condition = defaultCondition + " && (" + condition + ")"
	}
	return child.Runtime.Evaluator.EvaluateBool(condition, child.Snapshot())
}

// record appends the finalized step to the steps table. Only the orchestrator
// writes the table, and only after a step is final.
func (c *Composite) record(rt *Runtime, child *ExecutionContext) {
	err := rt.Steps.Add(child.ScopeName, model.StepRecord{
		ID:         child.ContextName,
		Outcome:    child.Outcome,
		Conclusion: child.Result,
		Outputs:    child.OutputsSnapshot(),
	})
	if err != nil {
		panic(err)
	}
}

// Lifecycle runs the pre, main and post stages of a composite definition.
// main is skipped when pre did not succeed; post always runs and sees any
// earlier failure through failure() and success().
type Lifecycle struct {
	Manifest *config.Manifest
}

// NewLifecycle creates a lifecycle runner for manifest.
func NewLifecycle(manifest *config.Manifest) *Lifecycle {
	return &Lifecycle{Manifest: manifest}
}

// Run implements Runnable. The merged result of every stage that executed a
// step is written to parent.Result and parent.Outcome.
func (l *Lifecycle) Run(ctx context.Context, parent *ExecutionContext) error {
	result := model.None
	var status expression.Status

	for _, stage := range []config.Stage{config.StagePre, config.StageMain, config.StagePost} {
		if !l.hasStage(stage) {
			continue
		}
		if stage == config.StageMain && (status.Failed || status.Cancelled) {
			continue
		}

		composite := NewComposite(l.Manifest, stage)
		composite.Status = status
		stageResult, executed := composite.Execute(ctx, parent)
		if executed == 0 {
			continue
		}

		result = model.MaxOutcome(result, stageResult)
		status.Failed = status.Failed || stageResult == model.Failed
		status.Cancelled = status.Cancelled || stageResult == model.Cancelled || ctx.Err() != nil
	}

	if !result.IsSet() {
		result = model.Succeeded
	}
	parent.Result = result
	parent.Outcome = result
	return nil
}

func (l *Lifecycle) hasStage(stage config.Stage) bool {
	for _, step := range l.Manifest.Runs.Steps {
		if step.StageOrDefault() == stage {
			return true
		}
	}
	return false
}

func eventFor(ec *ExecutionContext, eventType string) events.Event {
	event := events.Event{
		Type:        eventType,
		Scope:       ec.ScopeName,
		StepID:      ec.ContextName,
		DisplayName: ec.DisplayName,
		Stage:       string(ec.Step.StageOrDefault()),
	}
	if eventType != eventStepStarted {
		event.Result = ec.Result
		event.Outcome = ec.Outcome
		event.Outputs = ec.OutputsSnapshot()
		event.Duration = ec.elapsed
		if errs := ec.Errors(); len(errs) > 0 {
			event.Err = errs[len(errs)-1]
			event.Message = event.Err.Error()
		}
	}
	return event
}
