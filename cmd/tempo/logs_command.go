package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		role   string
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the worker or CLI log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg.Paths.LogDir == "" {
				return errors.New("paths.log_dir is not set; file logging is disabled")
			}
			if role != "worker" && role != "cli" {
				return fmt.Errorf("unknown role %q (want worker or cli)", role)
			}
			path := logs.Path(cfg.Paths.LogDir, role)

			recent, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(recent) == 0 {
					fmt.Fprintf(out, "No log lines in %s\n", path)
				}
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, time.Second, func(line string) {
				fmt.Fprintln(out, line)
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", "worker", "Log to read: worker or cli")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new lines until interrupted")
	return cmd
}
