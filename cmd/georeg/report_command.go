package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var runFlag int64

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report on a journaled registration run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openJournal(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.LatestRun(cmd.Context())
			if runFlag > 0 {
				run, err = store.GetRun(cmd.Context(), runFlag)
			}
			if err != nil {
				return err
			}

			stats, err := store.Stats(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			frames, err := store.RunFrames(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderRun(run, stats, frames, stdoutIsTerminal()))
			return nil
		},
	}

	cmd.Flags().Int64Var(&runFlag, "run", 0, "Run id to report on (defaults to the latest run)")
	return cmd
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
