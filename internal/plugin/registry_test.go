package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/engine"
	"github.com/alexisbeaulieu97/compositor/internal/logger"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

type testRunnable struct {
	step config.StepSpec
}

func (r *testRunnable) Run(ctx context.Context, ec *engine.ExecutionContext) error {
	return nil
}

func testFactory(step config.StepSpec) (engine.Runnable, error) {
	return &testRunnable{step: step}, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(logger.Nop())
	require.NoError(t, reg.Register(KindRun, testFactory))
	require.NoError(t, reg.Register(KindComposite, testFactory))

	tests := []struct {
		name string
		step config.StepSpec
	}{
		{name: "inline script", step: config.StepSpec{ID: "a", Run: "echo hi", Shell: "bash"}},
		{name: "nested composite", step: config.StepSpec{ID: "b", Uses: "./nested"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runnable, err := reg.Resolve(tt.step)
			require.NoError(t, err)
			require.IsType(t, &testRunnable{}, runnable)
			require.Equal(t, tt.step.ID, runnable.(*testRunnable).step.ID)
		})
	}
}

func TestRegistry_KindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindRun, KindOf(config.StepSpec{Run: "true"}))
	require.Equal(t, KindComposite, KindOf(config.StepSpec{Uses: "./x"}))
}

func TestRegistry_PreventsInvalidRegistration(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(KindRun, testFactory))

	tests := []struct {
		name    string
		kind    Kind
		factory Factory
	}{
		{name: "duplicate", kind: KindRun, factory: testFactory},
		{name: "nil factory", kind: KindComposite, factory: nil},
		{name: "empty kind", kind: "", factory: testFactory},
	}

	for _, tt := range tests {
		err := reg.Register(tt.kind, tt.factory)
		require.Error(t, err, tt.name)
		var pluginErr *compositorerrors.PluginError
		require.ErrorAs(t, err, &pluginErr, tt.name)
	}

	require.Equal(t, []Kind{KindRun}, reg.List())
}

func TestRegistry_ResolveErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(logger.Nop())
	boom := errors.New("unsupported reference")
	require.NoError(t, reg.Register(KindComposite, func(step config.StepSpec) (engine.Runnable, error) {
		return nil, boom
	}))
	require.NoError(t, reg.Register(KindRun, func(step config.StepSpec) (engine.Runnable, error) {
		return nil, nil
	}))

	_, err := reg.Resolve(config.StepSpec{Uses: "docker://alpine"})
	require.ErrorIs(t, err, boom)

	_, err = reg.Resolve(config.StepSpec{Run: "true"})
	var pluginErr *compositorerrors.PluginError
	require.ErrorAs(t, err, &pluginErr)
	require.Equal(t, string(KindRun), pluginErr.Plugin)

	empty := NewRegistry(nil)
	_, err = empty.Resolve(config.StepSpec{Run: "true"})
	var notFound ErrRunnableNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, KindRun, notFound.Kind)
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(logger.Nop())
	require.NoError(t, reg.Register(KindRun, testFactory))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Resolve(config.StepSpec{Run: "true"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
}
