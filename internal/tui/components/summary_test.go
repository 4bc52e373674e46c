package components

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

func TestSummaryView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     SummaryData
		contains []string
		excludes []string
		empty    bool
	}{
		{
			name:  "nothing to report",
			data:  SummaryData{},
			empty: true,
		},
		{
			name:     "in progress",
			data:     SummaryData{Total: 10, Completed: 5},
			contains: []string{"Steps: 5/10 completed"},
			excludes: []string{"Execution finished"},
		},
		{
			name:     "finished",
			data:     SummaryData{Total: 2, Completed: 2, Finished: true, Result: model.Succeeded},
			contains: []string{"Steps: 2/2 completed", "Execution finished: succeeded"},
			excludes: []string{"pending"},
		},
		{
			name:     "finished with pending steps",
			data:     SummaryData{Total: 3, Completed: 1, Finished: true, Result: model.Failed},
			contains: []string{"Execution finished: failed (with pending steps)"},
		},
		{
			name:     "cancelled wins over result",
			data:     SummaryData{Total: 3, Completed: 1, Finished: true, Cancelled: true, Result: model.Failed},
			contains: []string{"Execution cancelled"},
			excludes: []string{"Execution finished"},
		},
		{
			name:     "error and outputs",
			data:     SummaryData{Err: errors.New("boom"), Outputs: []Output{{Name: "greeting", Value: "hi"}, {Name: "count", Value: "2"}}},
			contains: []string{"Error: boom", "Outputs:", "  greeting=hi", "  count=2"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			view := NewSummary(tt.data).View()
			if tt.empty {
				require.Empty(t, view)
				return
			}
			for _, want := range tt.contains {
				require.Contains(t, view, want)
			}
			for _, unwanted := range tt.excludes {
				require.NotContains(t, view, unwanted)
			}
		})
	}
}
