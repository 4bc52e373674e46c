package commandplugin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/engine"
	"github.com/alexisbeaulieu97/compositor/internal/expression"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/plugin"
	"github.com/alexisbeaulieu97/compositor/internal/plugins/internalexec"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

// EnvOutputFile names the file a script appends its outputs to.
const EnvOutputFile = "GITHUB_OUTPUT"

// Options configures inline script steps.
type Options struct {
	// DefaultShell is used for steps that do not declare a shell.
	DefaultShell string
	// Stdout and Stderr receive the script's output with masked values hidden.
	// When nil, output lines are written to the step logger at debug level.
	Stdout io.Writer
	Stderr io.Writer
	// TempDir holds the per-step script and output files; empty means os.TempDir.
	TempDir string
	// Masker is shared across steps so a value masked once stays masked.
	Masker *Masker
}

type commandRunnable struct {
	step config.StepSpec
	opts Options
}

// New creates the runnable for a `run:` step.
func New(step config.StepSpec, opts Options) engine.Runnable {
	if opts.Masker == nil {
		opts.Masker = &Masker{}
	}
	return &commandRunnable{step: step, opts: opts}
}

// Factory registers inline scripts with a runnable registry.
func Factory(opts Options) plugin.Factory {
	if opts.Masker == nil {
		opts.Masker = &Masker{}
	}
	return func(step config.StepSpec) (engine.Runnable, error) {
		if strings.TrimSpace(step.Run) == "" {
			return nil, fmt.Errorf("step has no script to run")
		}
		return New(step, opts), nil
	}
}

var _ engine.Runnable = (*commandRunnable)(nil)

func (r *commandRunnable) Run(ctx context.Context, ec *engine.ExecutionContext) error {
	snap := ec.Snapshot()
	evaluator := ec.Runtime.Evaluator

	script, err := evaluator.Interpolate(r.step.Run, snap)
	if err != nil {
		return compositorerrors.NewEvaluationError(compositorerrors.EvalScript, r.step.Run, err)
	}

	shellName := r.step.Shell
	if strings.TrimSpace(shellName) == "" {
		shellName = r.opts.DefaultShell
	}
	shell, err := ResolveShell(shellName)
	if err != nil {
		return err
	}

	dir, err := r.workingDirectory(ec, evaluator, snap)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(r.opts.TempDir, "compositor-step-")
	if err != nil {
		return fmt.Errorf("create step directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	scriptPath := filepath.Join(tmp, "script"+shell.Ext)
	if err := os.WriteFile(scriptPath, []byte(script), 0o700); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	outputPath := filepath.Join(tmp, "output")
	if err := os.WriteFile(outputPath, nil, 0o600); err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	env := ec.Env.Clone()
	env.Set(EnvOutputFile, outputPath)

	sess := newSession(ec, r.opts)
	ec.Logger.Debug("running script with " + shell.Name)

	res, runErr := internalexec.RunStreaming(ctx, internalexec.Spec{
		Argv:   shell.Command(scriptPath),
		Dir:    dir,
		Env:    env.Environ(),
		Stdout: sess.stdout,
		Stderr: sess.stderr,
	})
	sess.flush()

	pairs, parseErr := ParseOutputFile(outputPath)
	for _, pair := range pairs {
		ec.SetOutput(pair.Name, pair.Value)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		if res.ExitCode >= 0 {
			err := fmt.Errorf("process completed with exit code %d", res.ExitCode)
			if tail := lastLine(internalexec.PrimaryOutput(res)); tail != "" {
				err = fmt.Errorf("%w: %s", err, r.opts.Masker.Apply(tail))
			}
			return err
		}
		return fmt.Errorf("start %s: %w", shell.Name, runErr)
	}
	if parseErr != nil {
		return parseErr
	}

	sess.finish()
	return nil
}

func (r *commandRunnable) workingDirectory(ec *engine.ExecutionContext, evaluator *expression.Evaluator, snap expression.Snapshot) (string, error) {
	base := workspace(ec)
	raw := r.step.WorkingDirectory
	if strings.TrimSpace(raw) == "" {
		return base, nil
	}
	dir, err := evaluator.Interpolate(raw, snap)
	if err != nil {
		return "", compositorerrors.NewEvaluationError(compositorerrors.EvalWorkingDir, raw, err)
	}
	if !filepath.IsAbs(dir) && base != "" {
		dir = filepath.Join(base, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", dir)
	}
	return dir, nil
}

func workspace(ec *engine.ExecutionContext) string {
	github, ok := ec.Values.Get(engine.ContextGitHub)
	if !ok {
		return ""
	}
	ws, ok := github.Get("workspace")
	if !ok {
		return ""
	}
	return ws.Str()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// session interprets the output of one script run.
type session struct {
	ec     *engine.ExecutionContext
	opts   Options
	stdout *lineWriter
	stderr *lineWriter

	mu       sync.Mutex
	issues   int
	reported model.Outcome
}

func newSession(ec *engine.ExecutionContext, opts Options) *session {
	s := &session{ec: ec, opts: opts}
	s.stdout = &lineWriter{handle: s.handleStdout}
	s.stderr = &lineWriter{handle: s.handleStderr}
	return s
}

func (s *session) flush() {
	s.stdout.Flush()
	s.stderr.Flush()
}

// finish publishes what the script reported about its own result.
func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.reported.IsSet():
		s.ec.CommandResult = s.reported
	case s.issues > 0:
		s.ec.CommandResult = model.SucceededWithIssues
	}
}

func (s *session) handleStdout(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := ParseWorkflowCommand(line)
	if !ok {
		s.echo(s.opts.Stdout, "stdout", line)
		return
	}

	masker := s.opts.Masker
	switch cmd.Name {
	case "set-output":
		name := cmd.Properties["name"]
		if name == "" {
			s.ec.AddIssue(engine.IssueWarning, "set-output command without a name")
			s.issues++
			return
		}
		s.ec.SetOutput(name, cmd.Message)
	case "error":
		s.ec.AddIssue(engine.IssueError, masker.Apply(cmd.Message))
		s.issues++
	case "warning":
		s.ec.AddIssue(engine.IssueWarning, masker.Apply(cmd.Message))
		s.issues++
	case "notice":
		s.ec.AddIssue(engine.IssueNotice, masker.Apply(cmd.Message))
	case "set-result":
		outcome, err := model.ParseOutcome(cmd.Message)
		if err != nil {
			s.ec.AddIssue(engine.IssueWarning, fmt.Sprintf("ignoring set-result: %v", err))
			s.issues++
			return
		}
		s.reported = outcome
	case "add-mask":
		masker.Add(cmd.Message)
	case "debug":
		s.ec.Logger.Debug(masker.Apply(cmd.Message))
	case "group", "endgroup":
		if cmd.Message != "" {
			s.echo(s.opts.Stdout, "stdout", cmd.Message)
		}
	default:
		s.echo(s.opts.Stdout, "stdout", line)
	}
}

func (s *session) handleStderr(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo(s.opts.Stderr, "stderr", line)
}

func (s *session) echo(w io.Writer, stream, line string) {
	masked := s.opts.Masker.Apply(line)
	if w == nil {
		s.ec.Logger.With("stream", stream).Debug(masked)
		return
	}
	_, _ = io.WriteString(w, masked+"\n")
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	handle func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.handle(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.handle(strings.TrimRight(line, "\r\n"))
}
