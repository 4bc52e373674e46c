package expression

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// Status is what the status functions inspect.
type Status struct {
	// Failed is set once an earlier step of the running composite has a Failed result.
	Failed bool
	// Cancelled is set once the shared cancellation signal fired.
	Cancelled bool
}

func (e *Evaluator) options(root map[string]any, status Status) []expr.Option {
	return []expr.Option{
		expr.Function(lookupFunc, func(params ...any) (any, error) {
			return lookup(root, params), nil
		}),
		expr.Function("_success", func(params ...any) (any, error) {
			return !status.Failed && !status.Cancelled, nil
		}),
		expr.Function("_failure", func(params ...any) (any, error) {
			return status.Failed, nil
		}),
		expr.Function("_cancelled", func(params ...any) (any, error) {
			return status.Cancelled, nil
		}),
		expr.Function("_always", func(params ...any) (any, error) {
			return true, nil
		}),
		expr.Function("_contains", containsFunc),
		expr.Function("_startsWith", func(params ...any) (any, error) {
			if err := arity("startsWith", params, 2); err != nil {
				return nil, err
			}
			return strings.HasPrefix(strings.ToLower(Stringify(params[0])), strings.ToLower(Stringify(params[1]))), nil
		}),
		expr.Function("_endsWith", func(params ...any) (any, error) {
			if err := arity("endsWith", params, 2); err != nil {
				return nil, err
			}
			return strings.HasSuffix(strings.ToLower(Stringify(params[0])), strings.ToLower(Stringify(params[1]))), nil
		}),
		expr.Function("_format", formatFunc),
		expr.Function("_join", joinFunc),
		expr.Function("_toJSON", func(params ...any) (any, error) {
			if err := arity("toJSON", params, 1); err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(params[0], "", "  ")
			if err != nil {
				return nil, fmt.Errorf("toJSON: %w", err)
			}
			return string(data), nil
		}),
		expr.Function("_fromJSON", func(params ...any) (any, error) {
			if err := arity("fromJSON", params, 1); err != nil {
				return nil, err
			}
			var out any
			if err := json.Unmarshal([]byte(Stringify(params[0])), &out); err != nil {
				return nil, fmt.Errorf("fromJSON: %w", err)
			}
			return out, nil
		}),
	}
}

// lookup walks a property chain. Missing properties resolve to nil. Keys match
// exactly first and then case-insensitively.
func lookup(root map[string]any, path []any) any {
	var cur any = root
	for _, p := range path {
		switch container := cur.(type) {
		case map[string]any:
			key := Stringify(p)
			if v, ok := container[key]; ok {
				cur = v
				continue
			}
			cur = nil
			for k, v := range container {
				if strings.EqualFold(k, key) {
					cur = v
					break
				}
			}
		case []any:
			idx, ok := toIndex(p)
			if !ok || idx < 0 || idx >= len(container) {
				return nil
			}
			cur = container[idx]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func toIndex(p any) (int, bool) {
	switch v := p.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func containsFunc(params ...any) (any, error) {
	if err := arity("contains", params, 2); err != nil {
		return nil, err
	}
	needle := strings.ToLower(Stringify(params[1]))
	if items, ok := params[0].([]any); ok {
		for _, item := range items {
			if strings.ToLower(Stringify(item)) == needle {
				return true, nil
			}
		}
		return false, nil
	}
	return strings.Contains(strings.ToLower(Stringify(params[0])), needle), nil
}

func joinFunc(params ...any) (any, error) {
	if len(params) < 1 || len(params) > 2 {
		return nil, fmt.Errorf("join expects 1 or 2 arguments, got %d", len(params))
	}
	sep := ","
	if len(params) == 2 {
		sep = Stringify(params[1])
	}
	items, ok := params[0].([]any)
	if !ok {
		return Stringify(params[0]), nil
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, sep), nil
}

// formatFunc replaces {N} placeholders; {{ and }} escape literal braces.
func formatFunc(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("format expects at least 1 argument")
	}
	pattern := Stringify(params[0])
	args := params[1:]

	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '{' && i+1 < len(pattern) && pattern[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(pattern) && pattern[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("format: unclosed placeholder in %q", pattern)
			}
			n, err := strconv.Atoi(pattern[i+1 : i+end])
			if err != nil || n < 0 || n >= len(args) {
				return nil, fmt.Errorf("format: invalid placeholder %q in %q", pattern[i:i+end+1], pattern)
			}
			b.WriteString(Stringify(args[n]))
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func arity(name string, params []any, n int) error {
	if len(params) != n {
		return fmt.Errorf("%s expects %d arguments, got %d", name, n, len(params))
	}
	return nil
}

// Stringify renders an evaluation result the way it is substituted into text:
// nil is empty, scalars use their plain form and composites render as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// Truthy applies workflow truthiness: false, nil, "", "false", "0" and zero
// numbers are false, everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.TrimSpace(strings.ToLower(val)) {
		case "", "false", "0":
			return false
		}
		return true
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
