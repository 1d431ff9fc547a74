package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "timeline",
		Short:         "Offline-first life story timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to $CONFIG_PATH or configs/config.yaml)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
