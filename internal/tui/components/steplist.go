package components

import (
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// StepEntry represents a single step for rendering.
type StepEntry struct {
	// ID is the qualified step id, e.g. build.compile.
	ID      string
	Label   string
	Depth   int
	Running bool
	Result  model.StepResult
}

// Done reports whether the step reached a final result.
func (e StepEntry) Done() bool {
	return e.Result.Result.IsSet()
}

// StepList renders a list of steps with their current status.
type StepList struct {
	entries []StepEntry
}

// NewStepList constructs a step list component. Nested steps are indented
// under the step that ran them.
func NewStepList(order []string, steps map[string]model.StepResult, running map[string]bool) StepList {
	entries := make([]StepEntry, 0, len(order))
	for _, id := range order {
		res := steps[id]
		entries = append(entries, StepEntry{
			ID:      id,
			Label:   label(id, res),
			Depth:   strings.Count(id, "."),
			Running: running[id],
			Result:  res,
		})
	}
	return StepList{entries: entries}
}

func label(id string, res model.StepResult) string {
	if strings.TrimSpace(res.DisplayName) != "" {
		return res.DisplayName
	}
	if idx := strings.LastIndexByte(id, '.'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// Entries returns the ordered step entries.
func (s StepList) Entries() []StepEntry {
	clone := make([]StepEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}
