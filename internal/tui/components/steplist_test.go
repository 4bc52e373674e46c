package components

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

func TestNewStepList(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		sl := NewStepList(nil, map[string]model.StepResult{}, nil)
		require.Empty(t, sl.Entries())
	})

	t.Run("respects order and nesting", func(t *testing.T) {
		t.Parallel()
		order := []string{"setup", "build", "build.compile", "__2"}
		steps := map[string]model.StepResult{
			"setup":         {StepID: "setup", Result: model.Succeeded},
			"build":         {StepID: "build", DisplayName: "Build it"},
			"build.compile": {StepID: "compile", Scope: "build"},
			"__2":           {StepID: "__2", DisplayName: "Run echo hi"},
		}
		running := map[string]bool{"build": true, "build.compile": true}

		entries := NewStepList(order, steps, running).Entries()
		require.Len(t, entries, 4)

		require.Equal(t, "setup", entries[0].ID)
		require.Equal(t, "setup", entries[0].Label)
		require.True(t, entries[0].Done())
		require.False(t, entries[0].Running)

		require.Equal(t, "Build it", entries[1].Label)
		require.True(t, entries[1].Running)
		require.Equal(t, 0, entries[1].Depth)

		require.Equal(t, "compile", entries[2].Label)
		require.Equal(t, 1, entries[2].Depth)
		require.False(t, entries[2].Done())

		require.Equal(t, "Run echo hi", entries[3].Label)
	})

	t.Run("entries are copies", func(t *testing.T) {
		t.Parallel()
		sl := NewStepList([]string{"a"}, map[string]model.StepResult{"a": {StepID: "a"}}, nil)
		entries := sl.Entries()
		entries[0].ID = "changed"
		require.Equal(t, "a", sl.Entries()[0].ID)
	})
}
