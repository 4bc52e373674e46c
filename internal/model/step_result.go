package model

import (
	"time"
)

// StepResult captures the outcome of executing a single sub-step for reporting.
type StepResult struct {
	StepID      string
	Scope       string
	DisplayName string
	// Result is the published status, possibly overridden by continue-on-error.
	Result Outcome
	// Outcome is the status before any continue-on-error override.
	Outcome   Outcome
	Outputs   map[string]string
	Message   string
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

// QualifiedID joins scope and step id the way logs and summaries print them.
func (r StepResult) QualifiedID() string {
	if r.Scope == "" {
		return r.StepID
	}
	return r.Scope + "." + r.StepID
}

// Overridden reports whether continue-on-error turned a failure into success.
func (r StepResult) Overridden() bool {
	return r.Outcome == Failed && r.Result == Succeeded
}
