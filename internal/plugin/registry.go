package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/engine"
	"github.com/alexisbeaulieu97/compositor/internal/logger"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

// Kind identifies how a step is executed.
type Kind string

const (
	// KindRun executes an inline script (`run:`).
	KindRun Kind = "run"
	// KindComposite executes a nested composite action (`uses:`).
	KindComposite Kind = "composite"
)

// KindOf returns the kind of runnable a step needs.
func KindOf(step config.StepSpec) Kind {
	if step.Uses != "" {
		return KindComposite
	}
	return KindRun
}

// Factory builds the runnable for one step.
type Factory func(step config.StepSpec) (engine.Runnable, error)

// ErrRunnableNotFound is returned when no factory is registered for a kind.
type ErrRunnableNotFound struct {
	Kind Kind
}

func (e ErrRunnableNotFound) Error() string {
	return fmt.Sprintf("no runnable registered for kind '%s'\nHint: register the runnable before running the composite", e.Kind)
}

// Registry maps step kinds to runnable factories. It implements engine.Resolver.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
	logger    *logger.Logger
}

var _ engine.Resolver = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		factories: make(map[Kind]Factory),
		logger:    log,
	}
}

// Register adds the factory for kind.
func (r *Registry) Register(kind Kind, factory Factory) error {
	if kind == "" {
		return compositorerrors.NewPluginError(string(kind), fmt.Errorf("kind is empty"))
	}
	if factory == nil {
		return compositorerrors.NewPluginError(string(kind), fmt.Errorf("factory is nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return compositorerrors.NewPluginError(string(kind), fmt.Errorf("runnable already registered"))
	}
	r.factories[kind] = factory
	r.logger.Debug("registered runnable " + string(kind))
	return nil
}

// Resolve builds the runnable for step.
func (r *Registry) Resolve(step config.StepSpec) (engine.Runnable, error) {
	kind := KindOf(step)

	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, compositorerrors.NewPluginError(string(kind), ErrRunnableNotFound{Kind: kind})
	}

	runnable, err := factory(step)
	if err != nil {
		return nil, compositorerrors.NewPluginError(string(kind), err)
	}
	if runnable == nil {
		return nil, compositorerrors.NewPluginError(string(kind), fmt.Errorf("factory returned no runnable"))
	}
	return runnable, nil
}

// List returns the registered kinds in sorted order.
func (r *Registry) List() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
