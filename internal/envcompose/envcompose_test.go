package envcompose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

func TestComposeLayering(t *testing.T) {
	t.Parallel()

	inherited := map[string]string{"X": "1", "PATH": "/bin"}
	parentEnv := model.MappingFromStrings(map[string]string{"X": "2"})
	stepEnv := model.MappingFromStrings(map[string]string{"X": "3"})

	tests := []struct {
		name     string
		layers   []*model.ContextValue
		expected string
	}{
		{"all layers", []*model.ContextValue{parentEnv, stepEnv}, "3"},
		{"without step expression", []*model.ContextValue{parentEnv, nil}, "2"},
		{"inherited only", []*model.ContextValue{nil, nil}, "1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := Compose(CaseSensitive, inherited, tt.layers...)
			got, ok := env.Get("X")
			require.True(t, ok)
			require.Equal(t, tt.expected, got)
			path, _ := env.Get("PATH")
			require.Equal(t, "/bin", path)
		})
	}
}

func TestComposeCaseSensitiveKeepsDistinctKeys(t *testing.T) {
	t.Parallel()

	env := Compose(CaseSensitive, map[string]string{"Path": "a"},
		model.MappingFromStrings(map[string]string{"PATH": "b"}))

	require.Equal(t, 2, env.Len())
	require.Equal(t, map[string]string{"Path": "a", "PATH": "b"}, env.Map())
}

func TestComposeCaseInsensitivePreservesFirstCasing(t *testing.T) {
	t.Parallel()

	env := Compose(CaseInsensitive, map[string]string{"Path": "a"},
		model.MappingFromStrings(map[string]string{"PATH": "b"}))

	require.Equal(t, 1, env.Len())
	require.Equal(t, map[string]string{"Path": "b"}, env.Map())
	got, ok := env.Get("path")
	require.True(t, ok)
	require.Equal(t, "b", got)
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, CaseInsensitive, PolicyFor("windows"))
	require.Equal(t, CaseSensitive, PolicyFor("linux"))
	require.Equal(t, CaseSensitive, PolicyFor("darwin"))
	require.Equal(t, "case-insensitive", PolicyFor("Windows").Name())
}

func TestEnvironmentRendering(t *testing.T) {
	t.Parallel()

	env := New(nil)
	env.Set("B", "2")
	env.Set("A", "1")
	env.Set("B", "3")

	require.Equal(t, []string{"B=3", "A=1"}, env.Environ())
	require.Equal(t, []string{"B", "A"}, env.ContextValue().Keys())

	clone := env.Clone()
	clone.Set("C", "4")
	require.Equal(t, 2, env.Len())
	require.Equal(t, 3, clone.Len())
}

func TestParseEnviron(t *testing.T) {
	t.Parallel()

	got := ParseEnviron([]string{"A=1", "B=x=y", "bad", "=skip", "A=2"})
	require.Equal(t, map[string]string{"A": "2", "B": "x=y"}, got)
}
