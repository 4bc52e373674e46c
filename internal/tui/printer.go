package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/tui/components"
)

// Printer is the non-interactive counterpart of the progress view: it writes
// one line per finished step and a closing summary.
type Printer struct {
	mu        sync.Mutex
	out       io.Writer
	completed int
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Handle implements events.Handler.
func (p *Printer) Handle(_ context.Context, event events.Event) error {
	msg, ok := MsgFromEvent(event).(StepCompleteMsg)
	if !ok {
		return nil
	}
	res := msg.Result
	entry := components.StepEntry{
		ID:     res.QualifiedID(),
		Label:  stepLabel(res),
		Depth:  strings.Count(res.QualifiedID(), "."),
		Result: res,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	_, err := fmt.Fprintln(p.out, renderStepEntry(entry))
	return err
}

// Summary writes the closing summary for a finished run.
func (p *Printer) Summary(data components.SummaryData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if data.Completed == 0 {
		data.Completed = p.completed
	}
	if data.Total == 0 {
		data.Total = data.Completed
	}
	view := components.NewSummary(data).View()
	if strings.TrimSpace(view) == "" {
		return nil
	}
	_, err := fmt.Fprintln(p.out, lipgloss.JoinVertical(lipgloss.Left, sectionStyle.Render("Summary"), view))
	return err
}

func stepLabel(res model.StepResult) string {
	if res.DisplayName != "" {
		return res.DisplayName
	}
	return res.QualifiedID()
}
