package internalexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// maxCaptured bounds the output kept for error messages.
const maxCaptured = 64 * 1024

// Spec describes one process invocation.
type Spec struct {
	Argv   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Result captures the tail of stdout/stderr and the exit code of a run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunStreaming starts the process described by spec, streams its output to
// the configured writers and keeps a bounded copy for later inspection.
// ExitCode is -1 when the process did not exit on its own.
func RunStreaming(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{ExitCode: -1}, errors.New("empty command line")
	}

	stdoutBuf := &tailBuffer{limit: maxCaptured}
	stderrBuf := &tailBuffer{limit: maxCaptured}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = tee(spec.Stdout, stdoutBuf)
	cmd.Stderr = tee(spec.Stderr, stderrBuf)

	err := cmd.Run()

	res := Result{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res, err
}

// PrimaryOutput returns stderr if present, otherwise stdout.
func PrimaryOutput(res Result) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	return res.Stdout
}

func tee(w io.Writer, buf *tailBuffer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(w, buf)
}

type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
