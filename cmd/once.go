package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartcharge/app"
	"github.com/kilianp07/smartcharge/core/job"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run the scheduling job a single time now",
	RunE:  once,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func once(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		rep := svc.RunOnce(ctx)
		printReport(cmd, rep)
		switch rep.Outcome {
		case job.OutcomeSuccess, job.OutcomePriceFallback:
			return nil
		default:
			return fmt.Errorf("run %s ended with %s: %w", rep.RunID, rep.Outcome, rep.Err)
		}
	})
}
