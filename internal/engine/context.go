package engine

import (
	"context"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/envcompose"
	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/expression"
	"github.com/alexisbeaulieu97/compositor/internal/logger"
	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// Names of the expression contexts exposed to steps.
const (
	ContextInputs = "inputs"
	ContextSteps  = "steps"
	ContextEnv    = "env"
	ContextGitHub = "github"
	ContextRunner = "runner"
	ContextJob    = "job"
)

// Environment variables set on every sub-step.
const (
	EnvAction     = "GITHUB_ACTION"
	EnvActionPath = "GITHUB_ACTION_PATH"
)

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Runtime holds the collaborators shared by every context of one invocation tree.
type Runtime struct {
	Tree      *ScopeTree
	Steps     *model.StepsTable
	Evaluator *expression.Evaluator
	Policy    envcompose.KeyPolicy
	Resolver  Resolver
	Events    Publisher
	Logger    *logger.Logger
}

// RuntimeOptions configures NewRuntime.
type RuntimeOptions struct {
	Policy   envcompose.KeyPolicy
	Resolver Resolver
	Events   Publisher
	Logger   *logger.Logger
}

// NewRuntime wires a fresh steps table and scope tree.
func NewRuntime(opts RuntimeOptions) *Runtime {
	steps := model.NewStepsTable()
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	policy := opts.Policy
	if policy == nil {
		policy = envcompose.CaseSensitive
	}
	return &Runtime{
		Tree:      NewScopeTree(steps),
		Steps:     steps,
		Evaluator: expression.New(),
		Policy:    policy,
		Resolver:  opts.Resolver,
		Events:    opts.Events,
		Logger:    log,
	}
}

// Root creates the context of the top-level composite step. values must be a
// mapping of expression contexts; env is the inherited process/job environment.
func (rt *Runtime) Root(ctx context.Context, values *model.ContextValue, env map[string]string, actionPath string) *ExecutionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if values == nil {
		values = model.NewMapping()
	}
	ec := &ExecutionContext{
		Values:     values,
		Env:        envcompose.Compose(rt.Policy, env),
		Context:    ctx,
		ActionPath: actionPath,
		Logger:     rt.Logger,
		Runtime:    rt,
		Outputs:    make(map[string]string),
		started:    time.Now(),
	}
	rt.Tree.register(ec, noParent)
	return ec
}

func (rt *Runtime) publish(ctx context.Context, event events.Event) {
	if rt == nil || rt.Events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = rt.Events.Publish(ctx, event)
}

// IssueKind classifies an annotation reported by a step.
type IssueKind string

const (
	IssueError   IssueKind = "error"
	IssueWarning IssueKind = "warning"
	IssueNotice  IssueKind = "notice"
)

// Issue is an annotation reported by a step while it ran.
type Issue struct {
	Kind    IssueKind
	Message string
}

// ExecutionContext is the scoped state of one step. It is created right before
// the step runs, owned by that step only, and final once the step returns.
type ExecutionContext struct {
	// ScopeName is the steps table scope this step is recorded in.
	ScopeName string
	// ContextName is the step id, or a generated __<index> id.
	ContextName string
	Handle      ScopeHandle
	Step        config.StepSpec
	Index       int
	DisplayName string

	// Values holds the expression contexts visible to the step.
	Values *model.ContextValue
	// Env is the environment the step runs with.
	Env *envcompose.Environment
	// Context is the shared cancellation signal of the whole composite.
	Context    context.Context
	ActionPath string

	// Result is the published status; Outcome is the status before any
	// continue-on-error override; CommandResult is set by the step's own output.
	Result        model.Outcome
	Outcome       model.Outcome
	CommandResult model.Outcome
	Outputs       map[string]string

	Logger  *logger.Logger
	Runtime *Runtime

	status    expression.Status
	parentEnv *model.ContextValue

	mu      sync.Mutex
	errs    []error
	issues  []Issue
	started time.Time
	elapsed time.Duration
}

// QualifiedName identifies the step across scopes, e.g. build.compile.
func (ec *ExecutionContext) QualifiedName() string {
	return joinScope(ec.ScopeName, ec.ContextName)
}

// ChildScope is the scope the steps of a composite run by this context record into.
func (ec *ExecutionContext) ChildScope() string {
	return joinScope(ec.ScopeName, ec.ContextName)
}

// SetOutput stores a step output.
func (ec *ExecutionContext) SetOutput(name, value string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.Outputs == nil {
		ec.Outputs = make(map[string]string)
	}
	ec.Outputs[name] = value
}

// OutputsSnapshot copies the outputs recorded so far.
func (ec *ExecutionContext) OutputsSnapshot() map[string]string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]string, len(ec.Outputs))
	for k, v := range ec.Outputs {
		out[k] = v
	}
	return out
}

// RecordError stores and logs an error against the step.
func (ec *ExecutionContext) RecordError(err error) {
	if err == nil {
		return
	}
	ec.mu.Lock()
	ec.errs = append(ec.errs, err)
	ec.mu.Unlock()
	ec.Logger.Error(err, "step error")
}

// Errors returns the errors recorded against the step.
func (ec *ExecutionContext) Errors() []error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]error(nil), ec.errs...)
}

// AddIssue records an annotation. Warnings and errors are logged.
func (ec *ExecutionContext) AddIssue(kind IssueKind, message string) {
	ec.mu.Lock()
	ec.issues = append(ec.issues, Issue{Kind: kind, Message: message})
	ec.mu.Unlock()

	log := ec.Logger.With("kind", string(kind))
	switch kind {
	case IssueError:
		log.Error(nil, message)
	case IssueWarning:
		log.Warn(message)
	default:
		log.Info(message)
	}
}

// Issues returns the annotations reported by the step.
func (ec *ExecutionContext) Issues() []Issue {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]Issue(nil), ec.issues...)
}

// Status returns the status-function view the step was created with.
func (ec *ExecutionContext) Status() expression.Status {
	return ec.status
}

// Snapshot returns the expression view of the step's visible values.
func (ec *ExecutionContext) Snapshot() expression.Snapshot {
	status := ec.status
	if ec.Context != nil && ec.Context.Err() != nil {
		status.Cancelled = true
	}
	return expression.Snapshot{Values: ec.Values, Status: status}
}

// Duration is the time the step took, available once it finished.
func (ec *ExecutionContext) Duration() time.Duration {
	return ec.elapsed
}

// StepResult summarises the finished step for reporting.
func (ec *ExecutionContext) StepResult() model.StepResult {
	res := model.StepResult{
		StepID:      ec.ContextName,
		Scope:       ec.ScopeName,
		DisplayName: ec.DisplayName,
		Result:      ec.Result,
		Outcome:     ec.Outcome,
		Outputs:     ec.OutputsSnapshot(),
		Duration:    ec.elapsed,
		Timestamp:   ec.started,
	}
	if errs := ec.Errors(); len(errs) > 0 {
		res.Error = errs[len(errs)-1]
		res.Message = res.Error.Error()
	}
	return res
}

// cloneValues copies the top-level expression contexts so they can be rebound
// without touching the source mapping. Context values themselves are shared.
func cloneValues(src *model.ContextValue) *model.ContextValue {
	values := model.NewMapping()
	if src == nil {
		return values
	}
	for _, key := range src.Keys() {
		v, _ := src.Get(key)
		values.Set(key, v)
	}
	return values
}

func joinScope(scope, name string) string {
	switch {
	case scope == "":
		return name
	case name == "":
		return scope
	default:
		return scope + "." + name
	}
}
