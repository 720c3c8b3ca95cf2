package main

import (
	"context"

	"github.com/spf13/cobra"
)

var nowFlag string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one auto-submit pass over validated submissions",
	Long: `Run one auto-submit pass. Each validated submission whose confidence clears
its form type's threshold is transmitted; the rest are reported as withheld.

Examples:
  vermietify sweep
  vermietify sweep --now 2026-05-01T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now, err := parseNowFlag(nowFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.engine.Sweep(ctx, now)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch verdicts for submitted transmissions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now, err := parseNowFlag(nowFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.engine.PollOutcomes(ctx, now)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Show the priority and stalled work queues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now, err := parseNowFlag(nowFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			view, err := a.engine.QueueView(ctx, now)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{sweepCmd, pollCmd, queuesCmd} {
		c.Flags().StringVar(&nowFlag, "now", "", "Reference time (RFC3339, default current time)")
	}
}
