package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	title := titleStyle.Render(fmt.Sprintf("Compositor • %s", m.title()))
	sections = append(sections, title)

	progress := components.NewProgress(m.total).View(m.completed)
	sections = append(sections, sectionStyle.Render("Progress"), progress)

	entries := components.NewStepList(m.order, m.steps, m.running).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Steps"))
		sections = append(sections, renderStepEntries(entries))
	}

	summary := components.NewSummary(m.summaryData()).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) summaryData() components.SummaryData {
	return components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Result:    m.result,
		Outputs:   m.outputs,
		Err:       m.err,
	}
}

func renderStepEntries(entries []components.StepEntry) string {
	var lines []string
	for _, entry := range entries {
		lines = append(lines, renderStepEntry(entry))
	}
	return strings.Join(lines, "\n")
}

func renderStepEntry(entry components.StepEntry) string {
	res := entry.Result
	icon := StatusIcon(res.Result)
	if entry.Running {
		icon = runningStyle.Render("⏳")
	}

	line := fmt.Sprintf(" %s%s %s", strings.Repeat("  ", entry.Depth), icon, entry.Label)
	if res.Overridden() {
		line += detailStyle.Render(" (failure ignored)")
	}
	if msg := firstLine(res.Message); msg != "" {
		line = fmt.Sprintf("%s: %s", line, detailStyle.Render(msg))
	}
	if res.Duration > 0 {
		line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
	}
	return line
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func (m Model) title() string {
	if m.manifest != nil && strings.TrimSpace(m.manifest.Name) != "" {
		return m.manifest.Name
	}
	return "Execution"
}

// StatusIcon returns the glyph representing a step result.
func StatusIcon(result model.Outcome) string {
	switch result {
	case model.Succeeded:
		return successStyle.Render("✓")
	case model.SucceededWithIssues:
		return issuesStyle.Render("!")
	case model.Failed:
		return failureStyle.Render("✗")
	case model.Cancelled:
		return cancelledStyle.Render("■")
	case model.Skipped:
		return skippedStyle.Render("⊘")
	default:
		return pendingStyle.Render("…")
	}
}
