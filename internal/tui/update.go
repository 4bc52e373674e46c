package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case StepStartMsg:
		if msg.ID == "" {
			return m, nil
		}
		m.ensureStep(msg.ID)
		m.running[msg.ID] = true
		if msg.Name != "" {
			step := m.steps[msg.ID]
			step.DisplayName = msg.Name
			m.steps[msg.ID] = step
		}
		return m, nil
	case StepCompleteMsg:
		id := msg.Result.QualifiedID()
		if id == "" {
			return m, nil
		}
		m.ensureStep(id)
		previouslyCompleted := m.steps[id].Result.IsSet()
		m.steps[id] = msg.Result
		delete(m.running, id)
		if !previouslyCompleted {
			m.completed++
		}
		return m, nil
	case RunFinishedMsg:
		m.finished = true
		m.result = msg.Result
		m.outputs = msg.Outputs
		m.err = msg.Err
		m.running = make(map[string]bool)
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if !m.cancelled {
				m.cancelled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			if m.finished {
				return m, tea.Quit
			}
			return m, nil
		}
		if msg.String() == "q" && m.finished {
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}
