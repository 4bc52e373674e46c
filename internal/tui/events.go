package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// MsgFromEvent converts a lifecycle event into a program message. Composite
// completions are covered by the step that ran the composite and yield nil.
func MsgFromEvent(event events.Event) tea.Msg {
	switch event.Type {
	case events.EventStepStarted:
		return StepStartMsg{ID: event.QualifiedID(), Name: event.DisplayName, Time: event.Timestamp}
	case events.EventStepCompleted, events.EventStepSkipped:
		return StepCompleteMsg{Result: StepResultFromEvent(event)}
	default:
		return nil
	}
}

// StepResultFromEvent rebuilds the step summary carried by a completion event.
func StepResultFromEvent(event events.Event) model.StepResult {
	return model.StepResult{
		StepID:      event.StepID,
		Scope:       event.Scope,
		DisplayName: event.DisplayName,
		Result:      event.Result,
		Outcome:     event.Outcome,
		Outputs:     event.Outputs,
		Message:     event.Message,
		Error:       event.Err,
		Duration:    event.Duration,
		Timestamp:   event.Timestamp,
	}
}

// Forward delivers every step event published on p to send, typically
// (*tea.Program).Send.
func Forward(p *events.LoggingPublisher, send func(tea.Msg)) events.Subscription {
	return p.Subscribe(events.AllEvents, func(_ context.Context, event events.Event) error {
		if msg := MsgFromEvent(event); msg != nil {
			send(msg)
		}
		return nil
	})
}
