package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

func firstChild(t *testing.T, h *testHarness) *ExecutionContext {
	t.Helper()
	children := h.runtime.Tree.Children(h.root.Handle)
	require.NotEmpty(t, children)
	child, ok := h.runtime.Tree.Context(children[0])
	require.True(t, ok)
	return child
}

func TestStepExecutorClassifiesTermination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fn      func(ctx context.Context, ec *ExecutionContext) error
		result  model.Outcome
		wantErr error
	}{
		{
			name:   "success",
			fn:     succeed,
			result: model.Succeeded,
		},
		{
			name:   "plain error",
			fn:     fail,
			result: model.Failed,
		},
		{
			name: "cancellation without shared signal",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				return context.Canceled
			},
			result:  model.Cancelled,
			wantErr: context.Canceled,
		},
		{
			name: "wrapped deadline without shared signal",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				return errors.Join(errors.New("child killed"), context.DeadlineExceeded)
			},
			result:  model.Cancelled,
			wantErr: context.DeadlineExceeded,
		},
		{
			name: "panic",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				panic("boom")
			},
			result: model.Failed,
		},
		{
			name: "command reported issues",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				ec.CommandResult = model.SucceededWithIssues
				return nil
			},
			result: model.SucceededWithIssues,
		},
		{
			name: "command result never softens a failure",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				ec.CommandResult = model.Succeeded
				return errors.New("exit status 2")
			},
			result: model.Failed,
		},
		{
			name: "command result can fail a clean exit",
			fn: func(ctx context.Context, ec *ExecutionContext) error {
				ec.CommandResult = model.Failed
				return nil
			},
			result: model.Failed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.fakes.add("step", tt.fn)

			require.Equal(t, tt.result, h.run(t, manifestOf(runStep("a", "step"))))

			rec := h.record(t, "", "a")
			require.Equal(t, tt.result, rec.Conclusion)
			require.Equal(t, tt.result, rec.Outcome)

			if tt.wantErr != nil {
				child := firstChild(t, h)
				require.NotEmpty(t, child.Errors())
				require.ErrorIs(t, child.Errors()[0], tt.wantErr)
			}
		})
	}
}

func TestStepExecutorUnresolvableStepFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.Equal(t, model.Failed, h.run(t, manifestOf(runStep("a", "unknown"))))

	var execErr *compositorerrors.ExecutionError
	require.ErrorAs(t, firstChild(t, h).Errors()[0], &execErr)
	require.Equal(t, "a", execErr.StepID)
}

func TestStepExecutorContinueOnError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expression string
		conclusion model.Outcome
		evalError  bool
	}{
		{name: "literal true", expression: "true", conclusion: model.Succeeded},
		{name: "expression true", expression: "${{ github.workspace == '/work' }}", conclusion: model.Succeeded},
		{name: "literal false", expression: "false", conclusion: model.Failed},
		{name: "evaluation error", expression: "${{ github.workspace == }}", conclusion: model.Failed, evalError: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.fakes.add("boom", fail)

			step := runStep("a", "boom")
			step.ContinueOnError = config.BoolExpr{Expression: tt.expression}

			require.Equal(t, tt.conclusion, h.run(t, manifestOf(step)))

			rec := h.record(t, "", "a")
			require.Equal(t, model.Failed, rec.Outcome)
			require.Equal(t, tt.conclusion, rec.Conclusion)

			if tt.evalError {
				var evalErr *compositorerrors.EvaluationError
				errs := firstChild(t, h).Errors()
				require.ErrorAs(t, errs[len(errs)-1], &evalErr)
				require.Equal(t, compositorerrors.EvalContinueOnError, evalErr.Kind)
			}
		})
	}
}

func TestStepExecutorContinueOnErrorIgnoredOnSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.fakes.add("ok", succeed)

	step := runStep("a", "ok")
	step.ContinueOnError = config.BoolExpr{Expression: "${{ github.workspace == }}"}

	require.Equal(t, model.Succeeded, h.run(t, manifestOf(step)))
	require.Empty(t, firstChild(t, h).Errors())
}

func TestStepExecutorComposesEnvironment(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.root.Values.Set(ContextEnv, model.MappingFromStrings(map[string]string{"X": "1", "KEEP": "parent"}))

	seen := map[string]string{}
	var envContext *model.ContextValue
	h.fakes.add("observe", func(ctx context.Context, ec *ExecutionContext) error {
		seen = ec.Env.Map()
		envContext, _ = ec.Values.Get(ContextEnv)
		return nil
	})

	step := runStep("a", "observe")
	step.Env = config.EnvSpec{Vars: config.Mapping{
		{Key: "X", Value: "2"},
		{Key: "WHO", Value: "${{ inputs.who }}"},
	}}

	require.Equal(t, model.Succeeded, h.run(t, manifestOf(step)))

	require.Equal(t, "2", seen["X"])
	require.Equal(t, "bob", seen["WHO"])
	require.Equal(t, "parent", seen["KEEP"])
	require.Equal(t, "/home/bob", seen["HOME"])
	require.Equal(t, "a", seen[EnvAction])
	require.Equal(t, "/actions/root", seen[EnvActionPath])

	require.NotNil(t, envContext)
	require.Equal(t, map[string]string{"X": "2", "WHO": "bob", "KEEP": "parent"}, envContext.StringMap())

	rootEnv, _ := h.root.Values.Get(ContextEnv)
	require.Equal(t, "1", rootEnv.StringMap()["X"])
	_, leaked := h.root.Env.Get("WHO")
	require.False(t, leaked)
}

func TestStepExecutorEnvironmentExpression(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.fakes.add("produce", setOutput("vars", `{"A":"x","B":"y"}`))

	var seen map[string]string
	h.fakes.add("observe", func(ctx context.Context, ec *ExecutionContext) error {
		seen = ec.Env.Map()
		return nil
	})

	step := runStep("b", "observe")
	step.Env = config.EnvSpec{Expression: "${{ fromJSON(steps.a.outputs.vars) }}"}

	require.Equal(t, model.Succeeded, h.run(t, manifestOf(runStep("a", "produce"), step)))
	require.Equal(t, "x", seen["A"])
	require.Equal(t, "y", seen["B"])
}

func TestStepExecutorEnvironmentFailureSkipsRunnable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  config.EnvSpec
	}{
		{
			name: "invalid variable expression",
			env:  config.EnvSpec{Vars: config.Mapping{{Key: "X", Value: "${{ inputs.who == }}"}}},
		},
		{
			name: "expression is not a mapping",
			env:  config.EnvSpec{Expression: "${{ inputs.who }}"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.fakes.add("never", succeed)

			step := runStep("a", "never")
			step.Env = tt.env

			require.Equal(t, model.Failed, h.run(t, manifestOf(step)))
			require.Empty(t, h.fakes.invoked())

			var evalErr *compositorerrors.EvaluationError
			require.ErrorAs(t, firstChild(t, h).Errors()[0], &evalErr)
			require.Equal(t, compositorerrors.EvalEnv, evalErr.Kind)
		})
	}
}

func TestStepExecutorNestedEnvironmentLayers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.root.Values.Set(ContextEnv, model.MappingFromStrings(map[string]string{"X": "1"}))

	inner := manifestOf(
		config.StepSpec{ID: "three", Run: "three", Env: config.EnvSpec{Vars: config.Mapping{{Key: "X", Value: "3"}}}},
		runStep("two", "two"),
	)

	seen := map[string]string{}
	observe := func(name string) func(ctx context.Context, ec *ExecutionContext) error {
		return func(ctx context.Context, ec *ExecutionContext) error {
			seen[name], _ = ec.Env.Get("X")
			return nil
		}
	}
	h.fakes.add("three", observe("three"))
	h.fakes.add("two", observe("two"))
	h.fakes.add("one", observe("one"))
	h.fakes.add("./inner", func(ctx context.Context, ec *ExecutionContext) error {
		return NewLifecycle(inner).Run(ctx, ec)
	})

	outer := manifestOf(
		config.StepSpec{ID: "nested", Uses: "./inner", Env: config.EnvSpec{Vars: config.Mapping{{Key: "X", Value: "2"}}}},
		runStep("plain", "one"),
	)

	require.Equal(t, model.Succeeded, h.run(t, outer))
	require.Equal(t, map[string]string{"three": "3", "two": "2", "one": "1"}, seen)
}

func TestStepExecutorDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step config.StepSpec
		want string
	}{
		{
			name: "evaluated in main stage",
			step: config.StepSpec{ID: "a", Run: "step", Name: "Greet ${{ inputs.who }}"},
			want: "Greet bob",
		},
		{
			name: "falls back to default label on error",
			step: config.StepSpec{ID: "a", Run: "step", Name: "${{ inputs.who == }}"},
			want: "Run step",
		},
		{
			name: "falls back when empty",
			step: config.StepSpec{ID: "a", Run: "step", Name: "${{ inputs.missing }}"},
			want: "Run step",
		},
		{
			name: "default label",
			step: config.StepSpec{ID: "a", Run: "step"},
			want: "Run step",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.fakes.add("step", succeed)

			require.Equal(t, model.Succeeded, h.run(t, manifestOf(tt.step)))
			require.Equal(t, tt.want, firstChild(t, h).DisplayName)
		})
	}
}

func TestStepExecutorPostStageDisplayNameIsLiteral(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.fakes.add("cleanup", succeed)

	manifest := manifestOf(config.StepSpec{ID: "p", Run: "cleanup", Name: "Clean ${{ inputs.who }}", Stage: config.StagePost})
	require.NoError(t, NewLifecycle(manifest).Run(h.root.Context, h.root))
	require.Equal(t, "Clean ${{ inputs.who }}", firstChild(t, h).DisplayName)
}
