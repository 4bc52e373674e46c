package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const progressWidth = 40

// Progress renders how many steps reached a final result.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress component for the given total.
func NewProgress(total int) Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = progressWidth
	return Progress{bar: bar, total: total}
}

// Ratio is the completed fraction, capped at 1. Nested steps discovered while
// running can push completed past the initial total.
func (p Progress) Ratio(completed int) float64 {
	if p.total <= 0 {
		return 0
	}
	return min(1.0, float64(completed)/float64(p.total))
}

// View renders the progress bar for the provided completion count.
func (p Progress) View(completed int) string {
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	percent := fmt.Sprintf("%3.0f%%", p.Ratio(completed)*100)
	return lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(p.Ratio(completed)), " ", percent)
}
