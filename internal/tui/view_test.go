package tui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/tui/components"
)

func TestViewRendersBasicLayout(t *testing.T) {
	t.Parallel()

	m := NewModel(testManifest(), nil)
	m.steps["build"] = model.StepResult{StepID: "build", DisplayName: "Build", Result: model.Failed, Message: "process completed with exit code 2\nmore", Duration: 1500 * time.Millisecond}
	m.completed = 1
	m.running["nested"] = true

	view := m.View()
	require.Contains(t, view, "Compositor • Test")
	require.Contains(t, view, "1/5")
	require.Contains(t, view, "Build")
	require.Contains(t, view, "exit code 2")
	require.NotContains(t, view, "more")
	require.Contains(t, view, "1.5s")
	require.Contains(t, view, "⏳")
	require.Contains(t, view, "Steps: 1/5 completed")
}

func TestViewShowsSummaryWhenFinished(t *testing.T) {
	t.Parallel()

	m := NewModel(testManifest(), nil)
	updated, _ := m.Update(RunFinishedMsg{
		Result:  model.Succeeded,
		Outputs: []components.Output{{Name: "greeting", Value: "hello"}},
		Err:     errors.New("post step warning"),
	})
	view := updated.(Model).View()

	require.Contains(t, view, "Execution finished: succeeded (with pending steps)")
	require.Contains(t, view, "greeting=hello")
	require.Contains(t, view, "Error: post step warning")
}

func TestRenderStepEntryIndentsAndAnnotates(t *testing.T) {
	t.Parallel()

	line := renderStepEntry(components.StepEntry{
		ID:     "nested.inner",
		Label:  "inner",
		Depth:  1,
		Result: model.StepResult{Result: model.Succeeded, Outcome: model.Failed},
	})
	require.Contains(t, line, "   ✓ inner")
	require.Contains(t, line, "(failure ignored)")
}

func TestStatusIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   model.Outcome
		expected string
	}{
		{"success shows checkmark", model.Succeeded, "✓"},
		{"issues show exclamation", model.SucceededWithIssues, "!"},
		{"failed shows cross", model.Failed, "✗"},
		{"cancelled shows square", model.Cancelled, "■"},
		{"skipped shows circle-slash", model.Skipped, "⊘"},
		{"pending shows ellipsis", model.None, "…"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, StatusIcon(tt.result), tt.expected)
		})
	}
}
