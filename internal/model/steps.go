package model

import (
	"fmt"
	"strings"
	"sync"
)

// HiddenStepPrefix marks generated step ids. Such steps are recorded but never
// visible through the steps expression context.
const HiddenStepPrefix = "__"

// StepRecord is the finalized entry for one executed step.
type StepRecord struct {
	ID         string
	Outcome    Outcome
	Conclusion Outcome
	Outputs    map[string]string
}

type scopeSteps struct {
	order   []string
	records map[string]StepRecord
}

// StepsTable is the append-only, scope-keyed record of executed steps.
// Writes happen on the orchestrating goroutine; reads may come from observers.
type StepsTable struct {
	mu     sync.RWMutex
	scopes map[string]*scopeSteps
}

// NewStepsTable creates an empty steps table.
func NewStepsTable() *StepsTable {
	return &StepsTable{scopes: make(map[string]*scopeSteps)}
}

// EnsureScope registers a scope so lookups resolve even before any step finalizes.
func (t *StepsTable) EnsureScope(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(scope)
}

func (t *StepsTable) ensure(scope string) *scopeSteps {
	s, ok := t.scopes[scope]
	if !ok {
		s = &scopeSteps{records: make(map[string]StepRecord)}
		t.scopes[scope] = s
	}
	return s
}

// Add appends a finalized record. A step id may only be recorded once per scope.
func (t *StepsTable) Add(scope string, record StepRecord) error {
	if record.ID == "" {
		return fmt.Errorf("steps table: empty step id in scope %q", scope)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.ensure(scope)
	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("steps table: step %q already recorded in scope %q", record.ID, scope)
	}

	outputs := make(map[string]string, len(record.Outputs))
	for k, v := range record.Outputs {
		outputs[k] = v
	}
	record.Outputs = outputs

	s.order = append(s.order, record.ID)
	s.records[record.ID] = record
	return nil
}

// Lookup returns the record for a step in a scope.
func (t *StepsTable) Lookup(scope, id string) (StepRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.scopes[scope]
	if !ok {
		return StepRecord{}, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

// Records returns the records of a scope in execution order.
func (t *StepsTable) Records(scope string) []StepRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]StepRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// ContextValue renders the expression view of a scope:
// <id> -> {outputs: {...}, outcome: "...", conclusion: "..."}.
func (t *StepsTable) ContextValue(scope string) *ContextValue {
	view := NewMapping()
	for _, rec := range t.Records(scope) {
		if strings.HasPrefix(rec.ID, HiddenStepPrefix) {
			continue
		}
		entry := NewMapping()
		entry.Set("outputs", MappingFromStrings(rec.Outputs))
		entry.Set("outcome", String(rec.Outcome.Conclusion()))
		entry.Set("conclusion", String(rec.Conclusion.Conclusion()))
		view.Set(rec.ID, entry)
	}
	return view
}
