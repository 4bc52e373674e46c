package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrStepTimedOut marks a step that observed cancellation while the shared
// composite signal was active.
var ErrStepTimedOut = stdErrors.New("the step timed out")

// ParseError represents an action manifest parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures manifest validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a step.
type ExecutionError struct {
	Scope  string
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError for a step in the root scope.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

// NewScopedExecutionError constructs an ExecutionError for a step inside a named scope.
func NewScopedExecutionError(scope, stepID string, err error) error {
	return &ExecutionError{Scope: scope, StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Scope != "" && e.StepID != "":
		return fmt.Sprintf("execution error on step %s.%s: %v", e.Scope, e.StepID, e.Err)
	case e.StepID != "":
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	default:
		return fmt.Sprintf("execution error: %v", e.Err)
	}
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EvaluationKind names the expression site that failed to evaluate.
type EvaluationKind string

const (
	EvalEnv             EvaluationKind = "env"
	EvalCondition       EvaluationKind = "if"
	EvalContinueOnError EvaluationKind = "continue-on-error"
	EvalOutput          EvaluationKind = "output"
	EvalDisplayName     EvaluationKind = "name"
	EvalInput           EvaluationKind = "with"
	EvalScript          EvaluationKind = "run"
	EvalWorkingDir      EvaluationKind = "working-directory"
)

// EvaluationError wraps an expression failure together with the expression text.
type EvaluationError struct {
	Kind       EvaluationKind
	Expression string
	Err        error
}

// NewEvaluationError constructs an EvaluationError.
func NewEvaluationError(kind EvaluationKind, expression string, err error) error {
	return &EvaluationError{Kind: kind, Expression: expression, Err: err}
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Expression != "" {
		return fmt.Sprintf("evaluate %s %q: %v", e.Kind, e.Expression, e.Err)
	}
	return fmt.Sprintf("evaluate %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying evaluator error.
func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PluginError indicates issues within runnable registration or resolution.
type PluginError struct {
	Plugin  string
	Message string
	Err     error
}

// NewPluginError constructs a PluginError for the given runnable kind.
func NewPluginError(plugin string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PluginError{Plugin: plugin, Message: message, Err: err}
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	if e.Plugin != "" {
		return fmt.Sprintf("plugin error [%s]: %s", e.Plugin, e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
