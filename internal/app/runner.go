package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/engine"
	"github.com/alexisbeaulieu97/compositor/internal/envcompose"
	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/logger"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/plugin"
	commandplugin "github.com/alexisbeaulieu97/compositor/internal/plugins/command"
	compositeplugin "github.com/alexisbeaulieu97/compositor/internal/plugins/composite"
	"github.com/alexisbeaulieu97/compositor/internal/settings"
)

// Runner is the job-level orchestrator: it owns the master cancellation signal
// and runs one composite action as the root of an invocation tree.
type Runner struct {
	settings *settings.Settings
	signals  []os.Signal
}

// NewRunner constructs a runner using the resolved settings. A nil value uses
// the built-in defaults.
func NewRunner(s *settings.Settings) *Runner {
	if s == nil {
		s = &settings.Settings{LogLevel: "info", LogFormat: "auto"}
	}
	return &Runner{
		settings: s,
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Prepared is a parsed and validated action ready to run.
type Prepared struct {
	Manifest *config.Manifest
	Path     string
}

// Prepare locates, parses and validates the action at path.
func (r *Runner) Prepare(path string) (*Prepared, error) {
	manifest, err := config.ParseManifest(path, r.parseOptions())
	if err != nil {
		return nil, err
	}
	return &Prepared{Manifest: manifest, Path: manifest.Path}, nil
}

func (r *Runner) parseOptions() config.Options {
	return config.Options{DefaultShell: r.settings.DefaultShell}
}

// RunRequest configures one run of a prepared action.
type RunRequest struct {
	Prepared *Prepared
	// Inputs are the caller-provided action inputs; declared defaults fill the rest.
	Inputs config.Mapping
	// Env is layered over the inherited environment for every step.
	Env config.Mapping
	// GitHub overrides or extends the github expression context.
	GitHub config.Mapping
	// Environ is the inherited process environment; nil means os.Environ.
	Environ []string
	// Workspace is the job working directory; empty means the current directory.
	Workspace string

	Logger *logger.Logger
	// Stdout and Stderr receive step output. When nil it is logged at debug level.
	Stdout io.Writer
	Stderr io.Writer
	// Subscribe is called with the run's publisher before any step starts.
	Subscribe func(*events.LoggingPublisher)
}

// Report is the outcome of a run.
type Report struct {
	RunID    string
	Name     string
	Result   model.Outcome
	Outcome  model.Outcome
	Outputs  map[string]string
	Steps    []model.StepResult
	Errors   []error
	Warnings []string
	// FailedSteps lists qualified ids of failed or cancelled steps.
	FailedSteps []string
	Summary     string
	Duration    time.Duration
}

// OutputNames returns the report outputs in manifest declaration order.
func (r *Report) OutputNames(manifest *config.Manifest) []string {
	var names []string
	for _, spec := range manifest.Outputs {
		if _, ok := r.Outputs[spec.Name]; ok {
			names = append(names, spec.Name)
		}
	}
	return names
}

// Failed reports whether the run should end with a non-zero exit status.
func (r *Report) Failed() bool {
	return r.Result == model.Failed || r.Result == model.Cancelled
}

// Run executes the prepared action. Input and setup errors are returned before
// any step runs; step failures are reported through the Report.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Report, error) {
	if req.Prepared == nil || req.Prepared.Manifest == nil {
		return nil, fmt.Errorf("no action prepared")
	}
	manifest := req.Prepared.Manifest

	runID := uuid.NewString()
	log := req.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("run_id", runID)

	resolved, err := engine.ResolveInputs(manifest.Inputs, req.Inputs, nil)
	if err != nil {
		return nil, err
	}
	for _, warning := range resolved.Warnings {
		log.Warn(warning)
	}

	workspace, err := r.workspace(req.Workspace)
	if err != nil {
		return nil, err
	}

	environ := req.Environ
	if environ == nil {
		environ = os.Environ()
	}

	publisher := events.NewLoggingPublisher(log)
	if req.Subscribe != nil {
		req.Subscribe(publisher)
	}

	registry, err := r.registry(log, req)
	if err != nil {
		return nil, err
	}

	rt := engine.NewRuntime(engine.RuntimeOptions{
		Policy:   envcompose.PolicyFor(r.settings.GOOS()),
		Resolver: registry,
		Events:   publisher,
		Logger:   log,
	})

	ctx, cancel := r.masterContext(ctx)
	defer cancel()

	values := model.NewMapping()
	values.Set(engine.ContextInputs, resolved.Values)
	values.Set(engine.ContextEnv, model.MappingFromStrings(req.Env.Map()))
	values.Set(engine.ContextGitHub, githubContext(runID, workspace, manifest, req.GitHub))
	values.Set(engine.ContextRunner, runnerContext(r.settings.GOOS()))
	values.Set(engine.ContextJob, model.MappingFromStrings(map[string]string{"status": "success"}))

	root := rt.Root(ctx, values, envcompose.ParseEnviron(environ), manifest.Dir())

	log.WithFields(map[string]any{
		"action": manifest.Name,
		"path":   manifest.Path,
	}).Info("running composite action")

	start := time.Now()
	if err := engine.NewLifecycle(manifest).Run(ctx, root); err != nil {
		root.RecordError(err)
		root.Result = model.Failed
		root.Outcome = model.Failed
	}

	report := buildReport(rt, root, manifest)
	report.RunID = runID
	report.Warnings = resolved.Warnings
	report.Duration = time.Since(start)

	log.WithFields(map[string]any{
		"result":   report.Result.String(),
		"duration": report.Duration.String(),
	}).Info(report.Summary)

	return report, nil
}

// masterContext derives the cancellation signal shared by every step: the
// configured deadline plus interrupt handling.
func (r *Runner) masterContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, r.signals...)
	if r.settings.Timeout <= 0 {
		return ctx, stop
	}
	timed, cancel := context.WithTimeout(ctx, r.settings.Timeout)
	return timed, func() {
		cancel()
		stop()
	}
}

func (r *Runner) registry(log *logger.Logger, req RunRequest) (*plugin.Registry, error) {
	reg := plugin.NewRegistry(log)
	if err := reg.Register(plugin.KindRun, commandplugin.Factory(commandplugin.Options{
		DefaultShell: r.settings.DefaultShell,
		Stdout:       req.Stdout,
		Stderr:       req.Stderr,
		Masker:       &commandplugin.Masker{},
	})); err != nil {
		return nil, err
	}
	if err := reg.Register(plugin.KindComposite, compositeplugin.Factory(compositeplugin.Options{
		Parse: r.parseOptions(),
	})); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Runner) workspace(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return abs, nil
}

func githubContext(runID, workspace string, manifest *config.Manifest, overrides config.Mapping) *model.ContextValue {
	github := model.NewMapping()
	github.Set("run_id", model.String(runID))
	github.Set("workspace", model.String(workspace))
	github.Set("action_path", model.String(manifest.Dir()))
	github.Set("action", model.String(manifest.Name))
	for _, kv := range overrides {
		github.Set(kv.Key, model.String(kv.Value))
	}
	return github
}

func runnerContext(goos string) *model.ContextValue {
	name := goos
	switch goos {
	case "linux":
		name = "Linux"
	case "windows":
		name = "Windows"
	case "darwin":
		name = "macOS"
	}
	return model.MappingFromStrings(map[string]string{
		"os":   name,
		"arch": runtime.GOARCH,
		"temp": os.TempDir(),
	})
}

func buildReport(rt *engine.Runtime, root *engine.ExecutionContext, manifest *config.Manifest) *Report {
	report := &Report{
		Name:    manifest.Name,
		Result:  root.Result,
		Outcome: root.Outcome,
		Outputs: root.OutputsSnapshot(),
		Errors:  root.Errors(),
	}

	var failed []string
	for h := 0; h < rt.Tree.Len(); h++ {
		ec, ok := rt.Tree.Context(engine.ScopeHandle(h))
		if !ok || ec == root {
			continue
		}
		res := ec.StepResult()
		report.Steps = append(report.Steps, res)
		if res.Result == model.Failed || res.Result == model.Cancelled {
			failed = append(failed, res.QualifiedID())
		}
	}
	report.FailedSteps = dedupeStrings(failed)

	switch report.Result {
	case model.Failed:
		report.Summary = fmt.Sprintf("%d steps failed", len(report.FailedSteps))
	case model.Cancelled:
		report.Summary = "run cancelled"
	case model.SucceededWithIssues:
		report.Summary = fmt.Sprintf("%d steps completed with issues", len(report.Steps))
	default:
		report.Summary = fmt.Sprintf("All %d steps completed successfully", len(report.Steps))
	}
	return report
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
