package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/envcompose"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

// StepExecutor runs exactly one sub-step to a final outcome. It never returns
// an error or panics past its boundary: every fault ends in a recorded outcome.
type StepExecutor struct{}

// NewStepExecutor creates a step executor.
func NewStepExecutor() *StepExecutor {
	return &StepExecutor{}
}

// Run executes the step owned by ec and leaves Result, Outcome and outputs final.
func (x *StepExecutor) Run(ec *ExecutionContext) {
	start := time.Now()
	ec.started = start
	defer func() { ec.elapsed = time.Since(start) }()

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
		ec.Context = ctx
	}
	step := ec.Step

	ec.DisplayName = x.displayName(ec)

	ec.Runtime.publish(ctx, eventFor(ec, eventStepStarted))

	err := x.composeEnvironment(ec)
	// The runnable may rebind ec.Values, e.g. a nested composite binding inputs
	// and steps to its own scope; continue-on-error belongs to the caller.
	caller := cloneValues(ec.Values)
	if err != nil {
		ec.RecordError(err)
		ec.Result = model.Failed
	} else {
		x.invoke(ctx, ec)
	}

	if ec.CommandResult.IsSet() {
		ec.Result = model.MaxOutcome(ec.Result, ec.CommandResult)
	}
	ec.Outcome = ec.Result

	if ec.Result == model.Failed && step.ContinueOnError.IsSet() {
		snap := ec.Snapshot()
		snap.Values = caller
		override, err := ec.Runtime.Evaluator.EvaluateBool(step.ContinueOnError.Expression, snap)
		if err != nil {
			ec.RecordError(compositorerrors.NewEvaluationError(compositorerrors.EvalContinueOnError, step.ContinueOnError.Expression, err))
		} else if override {
			ec.Result = model.Succeeded
			ec.Logger.Info("continuing after failure: continue-on-error is set")
		}
	}
}

func (x *StepExecutor) displayName(ec *ExecutionContext) string {
	step := ec.Step
	if step.Name == "" {
		return step.DefaultLabel()
	}
	if step.StageOrDefault() != config.StageMain {
		return step.Name
	}
	name, err := ec.Runtime.Evaluator.Interpolate(step.Name, ec.Snapshot())
	if err != nil {
		ec.Logger.Debug(fmt.Sprintf("display name %q could not be evaluated: %v", step.Name, err))
		return step.DefaultLabel()
	}
	if strings.TrimSpace(name) == "" {
		return step.DefaultLabel()
	}
	return name
}

// composeEnvironment layers the inherited environment, the parent's env
// context and the step's env block, then publishes the result to ec.
func (x *StepExecutor) composeEnvironment(ec *ExecutionContext) error {
	rt := ec.Runtime
	step := ec.Step

	stepEnv, err := x.evaluateStepEnv(ec)
	if err != nil {
		return err
	}

	env := envcompose.Compose(rt.Policy, nil, ec.parentEnv, stepEnv)
	envContext := env.ContextValue()

	composed := ec.Env.Clone()
	composed.Apply(envContext)
	composed.Set(EnvAction, ec.QualifiedName())
	if ec.ActionPath != "" {
		composed.Set(EnvActionPath, ec.ActionPath)
	}
	ec.Env = composed

	if ec.parentEnv != nil || step.Env.IsSet() {
		ec.Values.Set(ContextEnv, envContext)
	}
	return nil
}

func (x *StepExecutor) evaluateStepEnv(ec *ExecutionContext) (*model.ContextValue, error) {
	step := ec.Step
	if !step.Env.IsSet() {
		return nil, nil
	}
	evaluator := ec.Runtime.Evaluator
	snap := ec.Snapshot()

	if step.Env.Expression != "" {
		value, err := evaluator.EvaluateMapping(step.Env.Expression, snap)
		if err != nil {
			return nil, compositorerrors.NewEvaluationError(compositorerrors.EvalEnv, step.Env.Expression, err)
		}
		return value, nil
	}

	out := model.NewMapping()
	for _, kv := range step.Env.Vars {
		text, err := evaluator.Interpolate(kv.Value, snap)
		if err != nil {
			return nil, compositorerrors.NewEvaluationError(compositorerrors.EvalEnv, kv.Value, err)
		}
		out.Set(kv.Key, model.String(text))
	}
	return out, nil
}

// invoke runs the step's runnable and classifies how it terminated.
func (x *StepExecutor) invoke(ctx context.Context, ec *ExecutionContext) {
	runnable, err := x.resolve(ec)
	if err == nil {
		err = callRunnable(ctx, runnable, ec)
	}

	switch {
	case err == nil:
		if !ec.Result.IsSet() {
			ec.Result = model.Succeeded
		}
	case isCancellation(err) && ctx.Err() != nil:
		ec.Result = model.Failed
		ec.RecordError(compositorerrors.NewScopedExecutionError(ec.ScopeName, ec.ContextName, compositorerrors.ErrStepTimedOut))
	case isCancellation(err):
		ec.Result = model.Cancelled
		ec.RecordError(compositorerrors.NewScopedExecutionError(ec.ScopeName, ec.ContextName, err))
	default:
		ec.Result = model.Failed
		ec.RecordError(compositorerrors.NewScopedExecutionError(ec.ScopeName, ec.ContextName, err))
	}
}

func (x *StepExecutor) resolve(ec *ExecutionContext) (Runnable, error) {
	if ec.Runtime.Resolver == nil {
		return nil, fmt.Errorf("no runnable resolver configured")
	}
	runnable, err := ec.Runtime.Resolver.Resolve(ec.Step)
	if err != nil {
		return nil, err
	}
	if runnable == nil {
		return nil, fmt.Errorf("no runnable for step")
	}
	return runnable, nil
}

func callRunnable(ctx context.Context, runnable Runnable, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ec.Logger.Debug(string(debug.Stack()))
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return runnable.Run(ctx, ec)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
