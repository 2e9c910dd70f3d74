package main

import (
	"github.com/spf13/cobra"

	"tempo/internal/client"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(dialWorker, client.Options{})
}

// newRootCommandWith builds the command tree over a custom worker dialer and
// default client collaborators.
func newRootCommandWith(dial dialFunc, defaults client.Options) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	ctx.dial = dial
	ctx.defaults = defaults

	rootCmd := &cobra.Command{
		Use:           "tempo",
		Short:         "Music library worker, audio server, and BPM analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newLibraryCommand(ctx))
	rootCmd.AddCommand(newServerCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newTagCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
