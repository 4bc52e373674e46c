package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/envcompose"
	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// fakeRunnables resolves steps by their run (or uses) text and records the
// order in which they were invoked.
type fakeRunnables struct {
	mu    sync.Mutex
	byKey map[string]Runnable
	calls []string
}

func newFakeRunnables() *fakeRunnables {
	return &fakeRunnables{byKey: make(map[string]Runnable)}
}

func (f *fakeRunnables) add(key string, fn func(ctx context.Context, ec *ExecutionContext) error) {
	f.byKey[key] = RunnableFunc(func(ctx context.Context, ec *ExecutionContext) error {
		f.mu.Lock()
		f.calls = append(f.calls, key)
		f.mu.Unlock()
		return fn(ctx, ec)
	})
}

func (f *fakeRunnables) Resolve(step config.StepSpec) (Runnable, error) {
	key := step.Run
	if key == "" {
		key = step.Uses
	}
	r, ok := f.byKey[key]
	if !ok {
		return nil, fmt.Errorf("no fake runnable for %q", key)
	}
	return r, nil
}

func (f *fakeRunnables) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type + ":" + e.QualifiedID()
	}
	return out
}

func succeed(ctx context.Context, ec *ExecutionContext) error { return nil }

func fail(ctx context.Context, ec *ExecutionContext) error { return errors.New("exit status 1") }

func setOutput(name, value string) func(ctx context.Context, ec *ExecutionContext) error {
	return func(ctx context.Context, ec *ExecutionContext) error {
		ec.SetOutput(name, value)
		return nil
	}
}

func runStep(id, run string) config.StepSpec {
	return config.StepSpec{ID: id, Run: run, Shell: "bash"}
}

func manifestOf(steps ...config.StepSpec) *config.Manifest {
	return &config.Manifest{
		Name: "test",
		Runs: config.Runs{Using: "composite", Steps: steps},
	}
}

type testHarness struct {
	runtime   *Runtime
	root      *ExecutionContext
	fakes     *fakeRunnables
	publisher *recordingPublisher
}

func newHarness(t *testing.T, ctx context.Context) *testHarness {
	t.Helper()
	if ctx == nil {
		ctx = context.Background()
	}
	fakes := newFakeRunnables()
	publisher := &recordingPublisher{}
	rt := NewRuntime(RuntimeOptions{
		Policy:   envcompose.CaseSensitive,
		Resolver: fakes,
		Events:   publisher,
	})

	values := model.NewMapping()
	values.Set(ContextInputs, model.MappingFromStrings(map[string]string{"who": "bob"}))
	values.Set(ContextGitHub, model.MappingFromStrings(map[string]string{"workspace": "/work"}))

	root := rt.Root(ctx, values, map[string]string{"HOME": "/home/bob"}, "/actions/root")
	require.NotNil(t, root)
	return &testHarness{runtime: rt, root: root, fakes: fakes, publisher: publisher}
}

func (h *testHarness) run(t *testing.T, manifest *config.Manifest) model.Outcome {
	t.Helper()
	require.NoError(t, NewComposite(manifest, config.StageMain).Run(h.root.Context, h.root))
	return h.root.Result
}

func (h *testHarness) record(t *testing.T, scope, id string) model.StepRecord {
	t.Helper()
	rec, ok := h.runtime.Steps.Lookup(scope, id)
	require.True(t, ok, "step %s.%s not recorded", scope, id)
	return rec
}
