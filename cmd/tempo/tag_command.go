package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tempo/internal/client"
	"tempo/internal/config"
)

func newTagCommand(ctx *commandContext) *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Write metadata tags into audio files",
	}

	var email string
	writeCmd := &cobra.Command{
		Use:   "write <audio-file> <bpm|rating|comment|genre> <value>",
		Short: "Write one tag into an MP3 or FLAC file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := cl.Library.WriteTag(runCtx, path, args[1], args[2], email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", args[1], path)
				return nil
			})
		},
	}
	writeCmd.Flags().StringVar(&email, "email", "", "Email recorded with rating tags")
	tagCmd.AddCommand(writeCmd)
	return tagCmd
}
