package expression

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

func testSnapshot(status Status) Snapshot {
	outputs := model.MappingFromStrings(map[string]string{"msg": "hi"})
	stepA := model.NewMapping()
	stepA.Set("outputs", outputs)
	stepA.Set("outcome", model.String("success"))
	stepA.Set("conclusion", model.String("success"))

	steps := model.NewMapping()
	steps.Set("a", stepA)
	steps.Set("build-app", stepA.Clone())

	values := model.NewMapping()
	values.Set("inputs", model.MappingFromStrings(map[string]string{"name": "World", "flag": "false"}))
	values.Set("steps", steps)
	values.Set("env", model.MappingFromStrings(map[string]string{"X": "2"}))
	values.Set("list", model.Sequence(model.String("alpha"), model.String("beta")))

	return Snapshot{Values: values, Status: status}
}

func TestEvaluateSingleExpressionReturnsValue(t *testing.T) {
	t.Parallel()

	ev := New()
	got, err := ev.Evaluate("${{ steps.a.outputs.msg }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "hi", got.Str())

	got, err = ev.Evaluate("${{ steps.build-app.outputs['msg'] }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "hi", got.Str())
}

func TestEvaluateStructuredResult(t *testing.T) {
	t.Parallel()

	got, err := New().Evaluate("${{ steps.a.outputs }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, model.KindMapping, got.Kind())
	require.Equal(t, `{"msg":"hi"}`, got.Str())
}

func TestEvaluateMissingPropertyIsNil(t *testing.T) {
	t.Parallel()

	ev := New()
	got, err := ev.Evaluate("${{ steps.missing.outputs.msg }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Nil(t, got)

	text, err := ev.Interpolate("[${{ unknown.deep.value }}]", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "[]", text)
}

func TestInterpolateMixedText(t *testing.T) {
	t.Parallel()

	text, err := New().Interpolate("Hello ${{ inputs.name }}, X=${{ env.X }}!", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "Hello World, X=2!", text)
}

func TestInterpolateWithoutMarkersIsLiteral(t *testing.T) {
	t.Parallel()

	got, err := New().Evaluate("plain text", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "plain text", got.Str())
}

func TestInterpolateClosingMarkerInsideString(t *testing.T) {
	t.Parallel()

	text, err := New().Interpolate("${{ format('{0}}}', inputs.name) }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, "World}", text)
}

func TestInterpolateUnterminated(t *testing.T) {
	t.Parallel()

	_, err := New().Interpolate("${{ inputs.name", testSnapshot(Status{}))
	require.Error(t, err)
}

func TestEvaluateBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		condition string
		status    Status
		expected  bool
	}{
		{"comparison", "inputs.name == 'World'", Status{}, true},
		{"wrapped", "${{ inputs.name != 'World' }}", Status{}, false},
		{"string false", "inputs.flag", Status{}, false},
		{"missing is false", "inputs.nope", Status{}, false},
		{"success", "success()", Status{}, true},
		{"success after failure", "success()", Status{Failed: true}, false},
		{"failure", "failure()", Status{Failed: true}, true},
		{"always", "always()", Status{Cancelled: true}, true},
		{"cancelled", "cancelled()", Status{Cancelled: true}, true},
		{"combined", "success() && steps.a.outcome == 'success'", Status{}, true},
		{"contains list", "contains(list, 'BETA')", Status{}, true},
		{"contains string", "contains(inputs.name, 'orl')", Status{}, true},
		{"startsWith", "startsWith(inputs.name, 'wo')", Status{}, true},
		{"endsWith", "endsWith(inputs.name, 'x')", Status{}, false},
		{"null literal", "inputs.nope == null", Status{}, true},
		{"escaped quote", "'it''s' == format('{0}''s', 'it')", Status{}, true},
	}

	ev := New()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ev.EvaluateBool(tt.condition, testSnapshot(tt.status))
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateBoolInvalidExpression(t *testing.T) {
	t.Parallel()

	_, err := New().EvaluateBool("inputs.name ==", testSnapshot(Status{}))
	require.Error(t, err)

	_, err = New().EvaluateBool("nosuchfunc(1)", testSnapshot(Status{}))
	require.Error(t, err)
}

func TestFunctions(t *testing.T) {
	t.Parallel()

	ev := New()
	snap := testSnapshot(Status{})

	text, err := ev.Interpolate("${{ join(list, '+') }}", snap)
	require.NoError(t, err)
	require.Equal(t, "alpha+beta", text)

	text, err = ev.Interpolate("${{ format('{0}-{1} {{x}}', inputs.name, 3) }}", snap)
	require.NoError(t, err)
	require.Equal(t, "World-3 {x}", text)

	got, err := ev.Evaluate("${{ fromJSON('{\"a\":[1,2]}') }}", snap)
	require.NoError(t, err)
	require.Equal(t, model.KindMapping, got.Kind())
	a, ok := got.Get("a")
	require.True(t, ok)
	require.Equal(t, "2", a.Items()[1].Str())

	text, err = ev.Interpolate("${{ fromJSON('{\"k\":\"v\"}').k }}", snap)
	require.NoError(t, err)
	require.Equal(t, "v", text)

	text, err = ev.Interpolate("${{ toJSON(inputs.name) }}", snap)
	require.NoError(t, err)
	require.Equal(t, `"World"`, text)

	_, err = ev.Interpolate("${{ format('{3}', 'a') }}", snap)
	require.Error(t, err)
}

func TestEvaluateMapping(t *testing.T) {
	t.Parallel()

	ev := New()
	got, err := ev.EvaluateMapping("${{ fromJSON('{\"X\":\"3\"}') }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"X": "3"}, got.StringMap())

	empty, err := ev.EvaluateMapping("${{ inputs.missing }}", testSnapshot(Status{}))
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())

	_, err = ev.EvaluateMapping("${{ inputs.name }}", testSnapshot(Status{}))
	require.Error(t, err)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	t.Parallel()

	ev := New()
	snap := testSnapshot(Status{})
	before := snap.Values.Str()

	first, err := ev.Evaluate("${{ steps.a.outputs.msg }}", snap)
	require.NoError(t, err)
	second, err := ev.Evaluate("${{ steps.a.outputs.msg }}", snap)
	require.NoError(t, err)

	require.Equal(t, first.Str(), second.Str())
	require.Equal(t, before, snap.Values.Str())
}

func TestHasStatusFunction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		condition string
		want      bool
	}{
		{"always()", true},
		{"${{ failure() || x }}", true},
		{"cancelled ( )", true},
		{"success() && contains(x, 'y')", true},
		{"inputs.run_always == 'true'", false},
		{"contains(x, 'failure(')", false},
		{`"always()" == x`, false},
		{"steps.always(x)", false},
		{"x == 'it''s success()'", false},
		{"'unterminated failure(", false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, HasStatusFunction(tt.condition), tt.condition)
	}
}

func TestStrip(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a == b", Strip("${{ a == b }}"))
	require.Equal(t, "a == b", Strip(" a == b "))
	require.True(t, IsExpression("x ${{ y }}"))
	require.False(t, IsExpression("x"))
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, false, "", "false", "0", 0, 0.0} {
		require.False(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{true, "yes", "1", 2, map[string]any{}} {
		require.True(t, Truthy(v), "%v", v)
	}
}
