package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/compositor/internal/app"
	"github.com/alexisbeaulieu97/compositor/internal/config"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <action-dir|action.yml>",
		Short: "Parse and validate a composite action without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}
			prepared, err := app.NewRunner(s).Prepare(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(prepared.Manifest))
			return nil
		},
	}

	return cmd
}

func describe(m *config.Manifest) string {
	stages := map[config.Stage]int{}
	for _, step := range m.Runs.Steps {
		stages[step.StageOrDefault()]++
	}
	line := fmt.Sprintf("%s: %q is valid (%d steps, %d inputs, %d outputs)", m.Path, m.Name, len(m.Runs.Steps), len(m.Inputs), len(m.Outputs))
	if stages[config.StagePre] > 0 || stages[config.StagePost] > 0 {
		line += fmt.Sprintf(" [pre %d, main %d, post %d]", stages[config.StagePre], stages[config.StageMain], stages[config.StagePost])
	}
	return line
}
