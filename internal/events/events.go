package events

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

const (
	// EventStepStarted is emitted before a step's runnable is invoked.
	EventStepStarted = "step.started"
	// EventStepCompleted is emitted once a step's result is final and recorded.
	EventStepCompleted = "step.completed"
	// EventStepSkipped is emitted when a step's condition evaluates to false.
	EventStepSkipped = "step.skipped"
	// EventCompositeCompleted is emitted when a composite reaches its terminal state.
	EventCompositeCompleted = "composite.completed"
	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// Event describes a lifecycle change of a step or composite. Dispatch is
// synchronous: Publish returns once every handler ran.
type Event struct {
	Type        string
	Scope       string
	StepID      string
	DisplayName string
	Stage       string
	Result      model.Outcome
	Outcome     model.Outcome
	Message     string
	Outputs     map[string]string
	Duration    time.Duration
	Err         error
	Timestamp   time.Time
}

// QualifiedID joins scope and step id.
func (e Event) QualifiedID() string {
	if e.Scope == "" {
		return e.StepID
	}
	if e.StepID == "" {
		return e.Scope
	}
	return e.Scope + "." + e.StepID
}

// Payload flattens the event into log fields.
func (e Event) Payload() map[string]any {
	fields := map[string]any{
		"event_type": e.Type,
		"step":       e.QualifiedID(),
	}
	if e.DisplayName != "" {
		fields["name"] = e.DisplayName
	}
	if e.Stage != "" {
		fields["stage"] = e.Stage
	}
	if e.Result.IsSet() {
		fields["result"] = e.Result.String()
	}
	if e.Outcome.IsSet() && e.Outcome != e.Result {
		fields["outcome"] = e.Outcome.String()
	}
	if e.Duration > 0 {
		fields["duration"] = e.Duration.String()
	}
	if e.Message != "" {
		fields["message"] = e.Message
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}
	return fields
}

// Handler processes an event. Returned errors are logged and do not stop delivery.
type Handler func(context.Context, Event) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}
