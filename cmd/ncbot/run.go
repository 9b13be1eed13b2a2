package main

import (
	"errors"

	"github.com/spf13/cobra"

	"ncbot/internal/runlock"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recast engine once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			a, err := newApp(ctx, logger, appOptions{dryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.runOnce(ctx)
			if errors.Is(err, runlock.ErrLocked) {
				logger.Info("Another run holds the lock; nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), output, sum)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and log recasts without sending them")
	return cmd
}
