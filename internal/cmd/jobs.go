package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"parking-spot-backend/internal/parse"
)

// NewDistributeCmd creates the distribute command
func NewDistributeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "distribute",
		Short: "Run one distribution over all open dates",
		Long: `Matches free releases with pending requests once. Confirmation timers for
holds opened by this run are picked up by a running server on its next
housekeeping tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				n, err := a.engine.RunDistribution(ctx)
				if err != nil {
					return fmt.Errorf("failed to run distribution: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Awarded %d spots\n", n)
				return nil
			})
		},
	}
}

// NewSweepCmd creates the sweep command
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close releases and requests whose date has passed unmatched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				releases, requests, err := a.engine.SweepStale(ctx)
				if err != nil {
					return fmt.Errorf("failed to sweep: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Closed %d releases and %d requests\n", releases, requests)
				return nil
			})
		},
	}
}

// NewRemindCmd creates the remind command
func NewRemindCmd(configPath *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Ask holders of accepted spots whether they still need them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				day, err := parse.Date(date, a.engine.Today())
				if err != nil {
					return err
				}
				n, deferred, err := a.engine.SendReminders(ctx, day)
				if err != nil {
					return fmt.Errorf("failed to send reminders: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %d reminders for %s\n", n, day)
				if deferred > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Deferred %d, their holders are still answering another reminder\n", deferred)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "tomorrow", "Date the reminders are about")

	return cmd
}

// withApp opens the application for a one-shot command and waits for queued
// notifications before returning.
func withApp(ctx context.Context, configPath string, fn func(ctx context.Context, a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
