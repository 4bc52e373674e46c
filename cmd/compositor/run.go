package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/compositor/internal/app"
	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/events"
	"github.com/alexisbeaulieu97/compositor/internal/model"
	"github.com/alexisbeaulieu97/compositor/internal/settings"
	"github.com/alexisbeaulieu97/compositor/internal/tui"
	"github.com/alexisbeaulieu97/compositor/internal/tui/components"
)

type runOptions struct {
	Path      string
	Inputs    []string
	Env       []string
	GitHub    []string
	Workspace string
	NoTUI     bool
}

// resultError ends the process with a non-zero status once the summary has
// already been shown.
type resultError struct {
	result model.Outcome
}

func (e *resultError) Error() string {
	return fmt.Sprintf("composite action finished with result %s", e.result)
}

var runCmdRunner = runAction

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <action-dir|action.yml>",
		Short: "Run a composite action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			if err := validateRunOptions(opts); err != nil {
				return err
			}
			return runCmdRunner(cmd, root, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "Action input as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "Environment variable for every step as NAME=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.GitHub, "github", nil, "Value of the github expression context as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "Job working directory (default: current directory)")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Print plain progress lines instead of the live view")

	return cmd
}

func runAction(cmd *cobra.Command, root *rootFlags, opts runOptions) error {
	s, err := loadSettings(cmd, root)
	if err != nil {
		return err
	}

	req := app.RunRequest{Workspace: opts.Workspace}
	if req.Inputs, err = parsePairs("input", opts.Inputs); err != nil {
		return err
	}
	if req.Env, err = parsePairs("env", opts.Env); err != nil {
		return err
	}
	if req.GitHub, err = parsePairs("github", opts.GitHub); err != nil {
		return err
	}

	runner := app.NewRunner(s)
	prepared, err := runner.Prepare(opts.Path)
	if err != nil {
		return err
	}
	req.Prepared = prepared

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	interactive := !opts.NoTUI && isTerminal(out)

	var report *app.Report
	if interactive {
		report, err = runInteractive(cmd.Context(), runner, req, s, out, errOut)
	} else {
		report, err = runPlain(cmd.Context(), runner, req, s, errOut)
	}
	if err != nil {
		return err
	}

	for _, name := range report.OutputNames(prepared.Manifest) {
		fmt.Fprintf(out, "%s=%s\n", name, report.Outputs[name])
	}

	if report.Failed() {
		return &resultError{result: report.Result}
	}
	return nil
}

func runPlain(ctx context.Context, runner *app.Runner, req app.RunRequest, s *settings.Settings, errOut io.Writer) (*app.Report, error) {
	log, err := newLogger(s, errOut)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	printer := tui.NewPrinter(errOut)
	req.Logger = log
	req.Stdout = errOut
	req.Stderr = errOut
	req.Subscribe = func(p *events.LoggingPublisher) {
		p.Subscribe(events.AllEvents, printer.Handle)
	}

	report, err := runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := printer.Summary(summaryData(report, req.Prepared.Manifest)); err != nil {
		return nil, err
	}
	return report, nil
}

func runInteractive(ctx context.Context, runner *app.Runner, req app.RunRequest, s *settings.Settings, out, errOut io.Writer) (*app.Report, error) {
	logs := &lockedBuffer{}
	defer logs.WriteTo(errOut) //nolint:errcheck

	log, err := newLogger(s, logs)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewModel(req.Prepared.Manifest, cancel), tea.WithOutput(out))
	var programErr error
	done := make(chan struct{})
	go func() {
		_, programErr = program.Run()
		close(done)
	}()

	req.Logger = log
	req.Subscribe = func(p *events.LoggingPublisher) {
		tui.Forward(p, program.Send)
	}

	report, runErr := runner.Run(ctx, req)
	finished := tui.RunFinishedMsg{Err: runErr}
	if report != nil {
		data := summaryData(report, req.Prepared.Manifest)
		finished.Result = data.Result
		finished.Outputs = data.Outputs
	}
	program.Send(finished)
	<-done

	if runErr != nil {
		return nil, runErr
	}
	if programErr != nil {
		return nil, programErr
	}
	return report, nil
}

func summaryData(report *app.Report, manifest *config.Manifest) components.SummaryData {
	data := components.SummaryData{
		Finished: true,
		Result:   report.Result,
	}
	for _, name := range report.OutputNames(manifest) {
		data.Outputs = append(data.Outputs, components.Output{Name: name, Value: report.Outputs[name]})
	}
	if errs := report.Errors; len(errs) > 0 {
		data.Err = errs[len(errs)-1]
	}
	return data
}
