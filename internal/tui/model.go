package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/tui/components"
)

// StepStartMsg indicates a step has started executing.
type StepStartMsg struct {
	// ID is the qualified step id.
	ID   string
	Name string
	Time time.Time
}

// StepCompleteMsg reports that a step has a final result.
type StepCompleteMsg struct {
	Result model.StepResult
}

// RunFinishedMsg reports that the whole composite finished.
type RunFinishedMsg struct {
	Result  model.Outcome
	Outputs []components.Output
	Err     error
}

type tickMsg struct{}

// Model contains the Bubbletea state for the live step progress view.
type Model struct {
	manifest  *config.Manifest
	steps     map[string]model.StepResult
	running   map[string]bool
	order     []string
	total     int
	completed int
	finished  bool
	cancelled bool
	result    model.Outcome
	outputs   []components.Output
	err       error
	cancel    func()
}

// NewModel constructs a model listing the manifest's top-level steps in stage
// order. cancel, when set, is called once the user interrupts the run.
func NewModel(manifest *config.Manifest, cancel func()) Model {
	m := Model{
		manifest: manifest,
		steps:    make(map[string]model.StepResult),
		running:  make(map[string]bool),
		order:    make([]string, 0),
		cancel:   cancel,
	}

	if manifest != nil {
		for _, stage := range []config.Stage{config.StagePre, config.StageMain, config.StagePost} {
			for i, step := range manifest.Runs.Steps {
				if step.StageOrDefault() != stage {
					continue
				}
				id := step.ID
				if id == "" {
					id = fmt.Sprintf("%s%d", model.HiddenStepPrefix, i)
				}
				m.ensureStep(id)
				m.steps[id] = model.StepResult{StepID: id, DisplayName: staticLabel(step)}
			}
		}
	}

	return m
}

// staticLabel is the label shown before the step's name is evaluated.
func staticLabel(step config.StepSpec) string {
	if step.Name != "" && !strings.Contains(step.Name, "${{") {
		return step.Name
	}
	return step.DefaultLabel()
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalSteps returns the total number of steps tracked by the model.
func (m Model) TotalSteps() int {
	return m.total
}

// CompletedSteps returns the number of steps with a final result.
func (m Model) CompletedSteps() int {
	return m.completed
}

// IsFinished reports whether execution has completed.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// ensureStep tracks id, placing a nested step after the entries of the step
// that runs it.
func (m *Model) ensureStep(id string) {
	if id == "" {
		return
	}
	if _, exists := m.steps[id]; exists {
		return
	}
	m.steps[id] = model.StepResult{StepID: id}
	m.total++

	idx := strings.LastIndexByte(id, '.')
	if idx < 0 {
		m.order = append(m.order, id)
		return
	}
	parent := id[:idx]
	insert := -1
	for i, existing := range m.order {
		if existing == parent || strings.HasPrefix(existing, parent+".") {
			insert = i + 1
		}
	}
	if insert < 0 {
		m.order = append(m.order, id)
		return
	}
	m.order = append(m.order, "")
	copy(m.order[insert+1:], m.order[insert:])
	m.order[insert] = id
}
