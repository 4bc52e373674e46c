// Package expression evaluates ${{ }} workflow expressions against the
// context values visible to a step. Expression bodies are compiled and run by
// expr-lang after property chains are rewritten into nil-safe lookups.
package expression

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

const (
	openMarker  = "${{"
	closeMarker = "}}"
)

var statusFunctions = map[string]bool{
	"success":   true,
	"failure":   true,
	"cancelled": true,
	"always":    true,
}

// Snapshot is the read-only view an expression is evaluated against.
type Snapshot struct {
	// Values is a mapping of context names (inputs, steps, env, github, ...) to values.
	Values *model.ContextValue
	Status Status
}

// Evaluator compiles and runs expressions. It holds no per-evaluation state and
// is safe for concurrent use.
type Evaluator struct{}

// New returns an evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Run evaluates a bare expression body (no ${{ }} markers) and returns the raw result.
func (e *Evaluator) Run(body string, snap Snapshot) (any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	translated, err := translate(body)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", body, err)
	}

	root, _ := snap.Values.ToAny().(map[string]any)
	if root == nil {
		root = map[string]any{}
	}

	program, err := expr.Compile(translated, e.options(root, snap.Status)...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", body, err)
	}
	output, err := expr.Run(program, nil)
	if err != nil {
		return nil, fmt.Errorf("eval expression %q: %w", body, err)
	}
	return output, nil
}

// Evaluate processes a template value. A value that is exactly one ${{ }}
// expression yields the structured result (nil when it resolves to nothing);
// anything else is interpolated into a string.
func (e *Evaluator) Evaluate(input string, snap Snapshot) (*model.ContextValue, error) {
	if body, ok := singleExpression(input); ok {
		raw, err := e.Run(body, snap)
		if err != nil {
			return nil, err
		}
		return model.FromAny(raw)
	}

	text, err := e.Interpolate(input, snap)
	if err != nil {
		return nil, err
	}
	return model.String(text), nil
}

// Interpolate substitutes every ${{ }} segment of input with its rendered result.
func (e *Evaluator) Interpolate(input string, snap Snapshot) (string, error) {
	segments, err := split(input)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range segments {
		if !seg.expression {
			b.WriteString(seg.text)
			continue
		}
		raw, err := e.Run(seg.text, snap)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(raw))
	}
	return b.String(), nil
}

// EvaluateBool evaluates a condition. The condition may be wrapped in ${{ }}
// or written as a bare expression; the result follows workflow truthiness.
func (e *Evaluator) EvaluateBool(condition string, snap Snapshot) (bool, error) {
	body := condition
	if inner, ok := singleExpression(condition); ok {
		body = inner
	} else if strings.Contains(condition, openMarker) {
		text, err := e.Interpolate(condition, snap)
		if err != nil {
			return false, err
		}
		return Truthy(text), nil
	}

	raw, err := e.Run(body, snap)
	if err != nil {
		return false, err
	}
	return Truthy(raw), nil
}

// EvaluateMapping evaluates an expression that must produce a mapping, such as
// an env block given as a single expression. A nil result yields an empty mapping.
func (e *Evaluator) EvaluateMapping(input string, snap Snapshot) (*model.ContextValue, error) {
	value, err := e.Evaluate(input, snap)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return model.NewMapping(), nil
	}
	if value.Kind() != model.KindMapping {
		return nil, fmt.Errorf("expression %q did not produce a mapping", input)
	}
	return value, nil
}

// HasStatusFunction reports whether a condition calls success, failure,
// cancelled or always. Names inside string literals and property names do not
// count.
func HasStatusFunction(condition string) bool {
	for i := 0; i < len(condition); {
		c := condition[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end, err := skipString(condition, i)
			if err != nil {
				return false
			}
			i = end
		case c == '.':
			i = scanIdent(condition, i+1, true)
		case isIdentStart(c):
			j := scanIdent(condition, i, false)
			if k := skipSpaces(condition, j); k < len(condition) && condition[k] == '(' && statusFunctions[condition[i:j]] {
				return true
			}
			i = j
		default:
			i++
		}
	}
	return false
}

// Strip removes a single surrounding ${{ }} wrapper, if present.
func Strip(input string) string {
	if body, ok := singleExpression(input); ok {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(input)
}

// IsExpression reports whether input contains at least one ${{ }} segment.
func IsExpression(input string) bool {
	return strings.Contains(input, openMarker)
}

type segment struct {
	text       string
	expression bool
}

func split(input string) ([]segment, error) {
	var segments []segment
	rest := input
	for {
		start := strings.Index(rest, openMarker)
		if start < 0 {
			if rest != "" {
				segments = append(segments, segment{text: rest})
			}
			return segments, nil
		}
		if start > 0 {
			segments = append(segments, segment{text: rest[:start]})
		}
		body := rest[start+len(openMarker):]
		end, err := findClose(body)
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", input, err)
		}
		segments = append(segments, segment{text: body[:end], expression: true})
		rest = body[end+len(closeMarker):]
	}
}

// findClose locates the closing marker, ignoring markers inside string literals.
func findClose(body string) (int, error) {
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\'', '"', '`':
			end, err := skipString(body, i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case '}':
			if strings.HasPrefix(body[i:], closeMarker) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("missing closing %q", closeMarker)
}

func singleExpression(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, openMarker) || !strings.HasSuffix(trimmed, closeMarker) {
		return "", false
	}
	segments, err := split(trimmed)
	if err != nil || len(segments) != 1 || !segments[0].expression {
		return "", false
	}
	return segments[0].text, true
}
