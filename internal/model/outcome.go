package model

import (
	"fmt"
	"strings"
)

// Outcome is the completion status of a step. Values are ordered by severity so
// that merging two outcomes is a plain maximum.
type Outcome int

const (
	// None marks a step that has not produced an outcome yet.
	None Outcome = iota
	// Succeeded marks a step that completed without problems.
	Succeeded
	// SucceededWithIssues marks a step that completed but reported warnings.
	SucceededWithIssues
	// Skipped marks a step whose condition evaluated to false.
	Skipped
	// Cancelled marks a step interrupted without the shared deadline signal.
	Cancelled
	// Failed marks a step that did not complete successfully.
	Failed
)

// String returns the lowercase name used in logs and summaries.
func (o Outcome) String() string {
	switch o {
	case None:
		return "none"
	case Succeeded:
		return "succeeded"
	case SucceededWithIssues:
		return "succeeded_with_issues"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Conclusion returns the value exposed to expressions as steps.<id>.outcome
// and steps.<id>.conclusion.
func (o Outcome) Conclusion() string {
	switch o {
	case Succeeded, SucceededWithIssues:
		return "success"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failure"
	default:
		return ""
	}
}

// IsSet reports whether the outcome carries a value.
func (o Outcome) IsSet() bool {
	return o != None
}

// IsSuccess reports whether the outcome counts as a successful completion.
func (o Outcome) IsSuccess() bool {
	return o == Succeeded || o == SucceededWithIssues
}

// MaxOutcome returns the more severe of the two outcomes.
func MaxOutcome(a, b Outcome) Outcome {
	if b > a {
		return b
	}
	return a
}

// ParseOutcome accepts both outcome names and expression conclusions.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "success":
		return Succeeded, nil
	case "succeeded_with_issues", "succeededwithissues":
		return SucceededWithIssues, nil
	case "skipped":
		return Skipped, nil
	case "cancelled", "canceled":
		return Cancelled, nil
	case "failed", "failure":
		return Failed, nil
	default:
		return None, fmt.Errorf("unknown outcome %q", raw)
	}
}

// MarshalText renders the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
