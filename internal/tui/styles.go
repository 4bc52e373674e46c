package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1)

	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	issuesStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	failureStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	detailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	summaryStyle   = lipgloss.NewStyle().MarginTop(1)
)
