package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the parkingd command tree.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "parkingd",
		Short: "Shared parking spot allocation service",
		Long: `parkingd matches parking spots that owners release for a day with colleagues
who request one, asks for confirmation when the award is close to the day,
and hands spots on when a confirmation does not arrive in time.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd(&configPath))
	rootCmd.AddCommand(NewDistributeCmd(&configPath))
	rootCmd.AddCommand(NewSweepCmd(&configPath))
	rootCmd.AddCommand(NewRemindCmd(&configPath))
	rootCmd.AddCommand(NewUserCmd(&configPath))
	rootCmd.AddCommand(NewTokenCmd(&configPath))

	return rootCmd
}
