package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"budgetkit/internal/services"
)

var flagAsOf string

var closeExpiredCmd = &cobra.Command{
	Use:   "close-expired",
	Short: "Close every open period whose end date has passed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSweep(cmd, "closed", func(ctx context.Context, p services.PeriodServicer, now time.Time) (*services.SweepResult, error) {
			return p.CloseExpired(ctx, now)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive closed periods past their retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSweep(cmd, "archived", func(ctx context.Context, p services.PeriodServicer, now time.Time) (*services.SweepResult, error) {
			return p.ArchiveStale(ctx, now)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{closeExpiredCmd, archiveCmd} {
		c.Flags().StringVar(&flagAsOf, "as-of", "", "Evaluate as of this date (YYYY-MM-DD) instead of now")
		rootCmd.AddCommand(c)
	}
}

func runSweep(cmd *cobra.Command, verb string, sweep func(context.Context, services.PeriodServicer, time.Time) (*services.SweepResult, error)) error {
	now := time.Now()
	if flagAsOf != "" {
		t, err := time.Parse(time.DateOnly, flagAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", flagAsOf, err)
		}
		if t.After(now) {
			return fmt.Errorf("--as-of %s is in the future", flagAsOf)
		}
		now = t
	}

	_, dbManager, svc, err := openServices()
	if err != nil {
		return err
	}
	defer dbManager.Close()

	result, err := sweep(cmd.Context(), svc.Periods, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d period(s), %d failed\n", verb, result.Processed, result.Failed)
	for _, id := range result.PeriodIDs {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d period(s) could not be %s", result.Failed, verb)
	}
	return nil
}
