package components

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// Output is one published composite output.
type Output struct {
	Name  string
	Value string
}

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	Result    model.Outcome
	Outputs   []Output
	Err       error
}

// Summary renders a textual execution summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Steps: %d/%d completed", s.data.Completed, s.data.Total))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Execution cancelled")
	case s.data.Finished && s.data.Result.IsSet():
		line := "Execution finished: " + s.data.Result.String()
		if s.data.Completed < s.data.Total {
			line += " (with pending steps)"
		}
		lines = append(lines, line)
	}

	if s.data.Err != nil {
		lines = append(lines, "Error: "+s.data.Err.Error())
	}

	if len(s.data.Outputs) > 0 {
		lines = append(lines, "Outputs:")
		for _, out := range s.data.Outputs {
			lines = append(lines, fmt.Sprintf("  %s=%s", out.Name, out.Value))
		}
	}

	return strings.Join(lines, "\n")
}
