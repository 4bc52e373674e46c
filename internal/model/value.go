package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the variants of ContextValue.
type Kind int

const (
	KindString Kind = iota
	KindSequence
	KindMapping
)

// ContextValue is the value type exposed to expression evaluation: a string, an
// ordered sequence, or a mapping that keeps insertion order. Every leaf is a string.
type ContextValue struct {
	kind  Kind
	str   string
	items []*ContextValue
	keys  []string
	index map[string]*ContextValue
}

// String constructs a string value.
func String(s string) *ContextValue {
	return &ContextValue{kind: KindString, str: s}
}

// Sequence constructs a sequence value from the given items.
func Sequence(items ...*ContextValue) *ContextValue {
	return &ContextValue{kind: KindSequence, items: append([]*ContextValue(nil), items...)}
}

// NewMapping constructs an empty mapping value.
func NewMapping() *ContextValue {
	return &ContextValue{kind: KindMapping, index: make(map[string]*ContextValue)}
}

// MappingFromStrings builds a mapping from a plain string map, keys sorted.
func MappingFromStrings(values map[string]string) *ContextValue {
	m := NewMapping()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, String(values[k]))
	}
	return m
}

// Kind reports the variant held by the value.
func (v *ContextValue) Kind() Kind {
	return v.kind
}

// Str returns the string payload; sequences and mappings render as JSON.
func (v *ContextValue) Str() string {
	if v == nil {
		return ""
	}
	if v.kind == KindString {
		return v.str
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Items returns the sequence elements.
func (v *ContextValue) Items() []*ContextValue {
	if v == nil || v.kind != KindSequence {
		return nil
	}
	return append([]*ContextValue(nil), v.items...)
}

// Set inserts or replaces a mapping entry. Replacing keeps the original position.
func (v *ContextValue) Set(key string, value *ContextValue) {
	if v.kind != KindMapping {
		panic(fmt.Sprintf("model: Set on %s value", v.kindName()))
	}
	if _, exists := v.index[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.index[key] = value
}

// Get looks up a mapping entry.
func (v *ContextValue) Get(key string) (*ContextValue, bool) {
	if v == nil || v.kind != KindMapping {
		return nil, false
	}
	val, ok := v.index[key]
	return val, ok
}

// Keys returns mapping keys in insertion order.
func (v *ContextValue) Keys() []string {
	if v == nil || v.kind != KindMapping {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Len returns the number of sequence items or mapping entries, or the string length.
func (v *ContextValue) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.keys)
	default:
		return len(v.str)
	}
}

// Clone deep-copies the value.
func (v *ContextValue) Clone() *ContextValue {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindSequence:
		items := make([]*ContextValue, len(v.items))
		for i, item := range v.items {
			items[i] = item.Clone()
		}
		return &ContextValue{kind: KindSequence, items: items}
	case KindMapping:
		m := NewMapping()
		for _, k := range v.keys {
			m.Set(k, v.index[k].Clone())
		}
		return m
	default:
		return String(v.str)
	}
}

// ToAny converts the value into plain Go values for the expression engine.
func (v *ContextValue) ToAny() any {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindSequence:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.ToAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.index[k].ToAny()
		}
		return out
	default:
		return v.str
	}
}

// StringMap flattens a mapping into key/string pairs. Non-string entries render as JSON.
func (v *ContextValue) StringMap() map[string]string {
	out := make(map[string]string, v.Len())
	for _, k := range v.Keys() {
		out[k] = v.index[k].Str()
	}
	return out
}

// FromAny converts an evaluation result into a ContextValue. Scalars become
// their string rendering, nil becomes nil.
func FromAny(raw any) (*ContextValue, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case *ContextValue:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return String(strconv.FormatBool(val)), nil
	case int:
		return String(strconv.Itoa(val)), nil
	case int64:
		return String(strconv.FormatInt(val, 10)), nil
	case float64:
		return String(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case []string:
		items := make([]*ContextValue, len(val))
		for i, s := range val {
			items[i] = String(s)
		}
		return Sequence(items...), nil
	case []any:
		items := make([]*ContextValue, 0, len(val))
		for i, item := range val {
			converted, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			if converted == nil {
				converted = String("")
			}
			items = append(items, converted)
		}
		return Sequence(items...), nil
	case map[string]string:
		return MappingFromStrings(val), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			converted, err := FromAny(val[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if converted == nil {
				converted = String("")
			}
			m.Set(k, converted)
		}
		return m, nil
	case fmt.Stringer:
		return String(val.String()), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

// MarshalJSON renders strings as JSON strings, sequences as arrays and mappings
// as objects in insertion order.
func (v *ContextValue) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	switch v.kind {
	case KindSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMapping:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			data, err := v.index[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.str)
	}
}

func (v *ContextValue) kindName() string {
	switch v.kind {
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "string"
	}
}
