package compositeplugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/engine"
	"github.com/alexisbeaulieu97/compositor/internal/plugin"
)

// DefaultMaxDepth bounds how deep composites may nest.
const DefaultMaxDepth = 10

// Options configures nested composite steps.
type Options struct {
	// Parse is applied to every nested manifest.
	Parse config.Options
	// MaxDepth stops runaway recursion between actions; zero means DefaultMaxDepth.
	MaxDepth int
}

type compositeRunnable struct {
	step config.StepSpec
	opts Options
}

// New creates the runnable for a `uses:` step.
func New(step config.StepSpec, opts Options) engine.Runnable {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &compositeRunnable{step: step, opts: opts}
}

// Factory registers nested composites with a runnable registry. Only local
// action references are supported.
func Factory(opts Options) plugin.Factory {
	return func(step config.StepSpec) (engine.Runnable, error) {
		if err := checkReference(step.Uses); err != nil {
			return nil, err
		}
		return New(step, opts), nil
	}
}

func checkReference(ref string) error {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return fmt.Errorf("step has no action reference")
	case strings.HasPrefix(ref, "docker://"):
		return fmt.Errorf("docker action %q is not supported", ref)
	case isLocal(ref):
		return nil
	default:
		return fmt.Errorf("remote action %q is not supported: reference a local path such as ./actions/name", ref)
	}
}

func isLocal(ref string) bool {
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") || filepath.IsAbs(ref)
}

var _ engine.Runnable = (*compositeRunnable)(nil)

func (r *compositeRunnable) Run(ctx context.Context, ec *engine.ExecutionContext) error {
	if depth := strings.Count(ec.QualifiedName(), ".") + 1; depth > r.opts.MaxDepth {
		return fmt.Errorf("composite nesting exceeds %d levels at %s", r.opts.MaxDepth, ec.QualifiedName())
	}

	path := r.step.Uses
	if !filepath.IsAbs(path) {
		path = filepath.Join(ec.ActionPath, path)
	}

	manifest, err := config.ParseManifest(path, r.opts.Parse)
	if err != nil {
		return err
	}

	// with: sees the caller's steps; the rebinding below is for the nested run.
	snap := ec.Snapshot()
	evaluator := ec.Runtime.Evaluator
	resolved, err := engine.ResolveInputs(manifest.Inputs, r.step.With, func(raw string) (string, error) {
		value, err := evaluator.Evaluate(raw, snap)
		if err != nil {
			return "", err
		}
		return value.Str(), nil
	})
	if err != nil {
		return err
	}
	for _, warning := range resolved.Warnings {
		ec.AddIssue(engine.IssueWarning, warning)
	}

	ec.Values.Set(engine.ContextInputs, resolved.Values)
	ec.Values.Set(engine.ContextSteps, ec.Runtime.Steps.ContextValue(ec.ChildScope()))
	ec.ActionPath = manifest.Dir()
	ec.Logger.Debug("running nested composite " + manifest.Path)

	return engine.NewLifecycle(manifest).Run(ctx, ec)
}
