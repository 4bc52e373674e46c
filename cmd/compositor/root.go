package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/compositor/internal/logger"
	"github.com/alexisbeaulieu97/compositor/internal/settings"
)

type rootFlags struct {
	configFile   string
	logLevel     string
	logFormat    string
	defaultShell string
	platform     string
	timeout      time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "compositor",
		Short:         "Compositor runs composite actions locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Settings file (default: ./compositor.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "auto", "Log format: auto, json or console")
	pf.StringVar(&flags.defaultShell, "default-shell", "", "Shell for run steps that do not declare one")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Cancel the run after this duration (0 disables)")
	pf.StringVar(&flags.platform, "platform", "", "Platform whose environment key rules apply (default: host OS)")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func loadSettings(cmd *cobra.Command, flags *rootFlags) (*settings.Settings, error) {
	opts := settings.LoadOptions{
		ConfigFile: flags.configFile,
		Flags:      cmd.Flags(),
	}
	if opts.ConfigFile == "" {
		opts.SearchPaths = []string{"."}
		if dir, err := os.UserConfigDir(); err == nil {
			opts.SearchPaths = append(opts.SearchPaths, filepath.Join(dir, settings.AppName))
		}
	}
	return settings.Load(opts)
}

func newLogger(s *settings.Settings, writer io.Writer) (*logger.Logger, error) {
	return logger.New(logger.Options{
		Level:         s.LogLevel,
		HumanReadable: s.HumanReadable(isTerminal(writer)),
		Writer:        writer,
	})
}

func isTerminal(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

// lockedBuffer holds log output while the progress view owns the terminal.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.WriteTo(w)
}
