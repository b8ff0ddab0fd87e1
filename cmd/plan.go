package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartcharge/app"
	"github.com/kilianp07/smartcharge/core/job"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute tonight's charging start without commanding the vehicle",
	RunE:  plan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func plan(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		rep := svc.Plan(ctx)
		printReport(cmd, rep)
		if rep.Outcome != job.OutcomePlanned {
			return fmt.Errorf("plan ended with %s: %w", rep.Outcome, rep.Err)
		}
		return nil
	})
}

func printReport(cmd *cobra.Command, rep job.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:            %s\n", rep.RunID)
	fmt.Fprintf(out, "outcome:        %s\n", rep.Outcome)
	fmt.Fprintf(out, "battery level:  %d%%\n", rep.LevelPercent)
	fmt.Fprintf(out, "required hours: %.2f (%d slots)\n", rep.RequiredHours, rep.SlotCount)
	if rep.HasStart {
		fmt.Fprintf(out, "start:          %s\n", rep.Start)
	}
	if rep.PriceFallback {
		fmt.Fprintln(out, "price lookup failed, default start used")
	}
	if rep.Err != nil {
		fmt.Fprintf(out, "error:          %v\n", rep.Err)
	}
}
