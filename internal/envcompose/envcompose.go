// Package envcompose builds the environment a step runs with from ordered layers.
package envcompose

import (
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// KeyPolicy decides when two environment keys name the same variable.
type KeyPolicy interface {
	Normalize(key string) string
	Name() string
}

type caseSensitive struct{}

func (caseSensitive) Normalize(key string) string { return key }
func (caseSensitive) Name() string                { return "case-sensitive" }

type caseInsensitive struct{}

func (caseInsensitive) Normalize(key string) string { return strings.ToUpper(key) }
func (caseInsensitive) Name() string                { return "case-insensitive" }

var (
	// CaseSensitive compares keys byte for byte (POSIX targets).
	CaseSensitive KeyPolicy = caseSensitive{}
	// CaseInsensitive folds keys before comparing (Windows targets).
	CaseInsensitive KeyPolicy = caseInsensitive{}
)

// PolicyFor returns the key policy of a target operating system.
func PolicyFor(goos string) KeyPolicy {
	if strings.EqualFold(goos, "windows") {
		return CaseInsensitive
	}
	return CaseSensitive
}

type entry struct {
	key   string
	value string
}

// Environment is an ordered set of variables compared under a KeyPolicy. The
// casing of the first writer is kept, the value of the last writer wins.
type Environment struct {
	policy  KeyPolicy
	order   []string
	entries map[string]entry
}

// New creates an empty environment. A nil policy means CaseSensitive.
func New(policy KeyPolicy) *Environment {
	if policy == nil {
		policy = CaseSensitive
	}
	return &Environment{policy: policy, entries: make(map[string]entry)}
}

// Compose layers inherited variables and any number of mapping layers. Later
// layers overwrite earlier ones; nil layers are skipped.
func Compose(policy KeyPolicy, inherited map[string]string, layers ...*model.ContextValue) *Environment {
	env := New(policy)
	env.Merge(inherited)
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		env.Apply(layer)
	}
	return env
}

// Set writes a variable.
func (e *Environment) Set(key, value string) {
	norm := e.policy.Normalize(key)
	existing, ok := e.entries[norm]
	if !ok {
		e.order = append(e.order, norm)
		e.entries[norm] = entry{key: key, value: value}
		return
	}
	existing.value = value
	e.entries[norm] = existing
}

// Get reads a variable.
func (e *Environment) Get(key string) (string, bool) {
	ent, ok := e.entries[e.policy.Normalize(key)]
	return ent.value, ok
}

// Merge overwrites with a plain map, in sorted key order.
func (e *Environment) Merge(values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Set(k, values[k])
	}
}

// Apply overwrites with a mapping value, in its key order.
func (e *Environment) Apply(layer *model.ContextValue) {
	for _, k := range layer.Keys() {
		v, _ := layer.Get(k)
		e.Set(k, v.Str())
	}
}

// Len returns the number of variables.
func (e *Environment) Len() int {
	return len(e.order)
}

// Policy returns the key policy in use.
func (e *Environment) Policy() KeyPolicy {
	return e.policy
}

// Map returns the variables keyed by their preserved casing.
func (e *Environment) Map() map[string]string {
	out := make(map[string]string, len(e.order))
	for _, norm := range e.order {
		ent := e.entries[norm]
		out[ent.key] = ent.value
	}
	return out
}

// Environ renders KEY=VALUE pairs in insertion order, suitable for exec.Cmd.Env.
func (e *Environment) Environ() []string {
	out := make([]string, 0, len(e.order))
	for _, norm := range e.order {
		ent := e.entries[norm]
		out = append(out, ent.key+"="+ent.value)
	}
	return out
}

// ContextValue renders the environment as an insertion-ordered mapping.
func (e *Environment) ContextValue() *model.ContextValue {
	m := model.NewMapping()
	for _, norm := range e.order {
		ent := e.entries[norm]
		m.Set(ent.key, model.String(ent.value))
	}
	return m
}

// Clone copies the environment.
func (e *Environment) Clone() *Environment {
	out := New(e.policy)
	for _, norm := range e.order {
		ent := e.entries[norm]
		out.order = append(out.order, norm)
		out.entries[norm] = ent
	}
	return out
}

// ParseEnviron converts KEY=VALUE pairs, as returned by os.Environ, into a map.
// Later duplicates win.
func ParseEnviron(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
