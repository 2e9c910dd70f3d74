package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"tempo/internal/audioserver"
	"tempo/internal/client"
	"tempo/internal/config"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Control the worker's audio file server",
	}
	serverCmd.AddCommand(newServerStartCommand(ctx))
	serverCmd.AddCommand(newServerStopCommand(ctx))
	serverCmd.AddCommand(newServerRestartCommand(ctx))
	serverCmd.AddCommand(newServerConversionsCommand(ctx))
	return serverCmd
}

func resolveRoot(root string) (string, error) {
	return config.ExpandPath(root)
}

func printServerInfo(out io.Writer, info client.ServerInfo) {
	serverReport(info).render(out)
}

func newServerStartCommand(ctx *commandContext) *cobra.Command {
	var hold bool
	cmd := &cobra.Command{
		Use:   "start <audio-root>",
		Short: "Start serving audio files from a folder",
		Long: "Start the audio file server. With a stdio worker the server lives only as long as\n" +
			"this command, so it holds until interrupted; a websocket worker keeps serving after exit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args[0])
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			wait := hold || cfg.Transport.Mode == "stdio"
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				out := cmd.OutOrStdout()
				if err := cl.Server.Start(runCtx, root); err != nil {
					return err
				}
				printServerInfo(out, cl.Server.Info())
				if !wait {
					return nil
				}

				lost := make(chan audioserver.Status, 1)
				cancel := cl.Server.OnStatus(func(status audioserver.Status) {
					if status == audioserver.StatusStopped || status == audioserver.StatusFailed {
						select {
						case lost <- status:
						default:
						}
					}
				})
				defer cancel()
				crashed := make(chan error, 1)
				cancelErr := cl.Server.OnError(func(err error) {
					select {
					case crashed <- err:
					default:
					}
				})
				defer cancelErr()
				fmt.Fprintln(out, "Serving; press Ctrl-C to stop.")
				select {
				case <-runCtx.Done():
					stopCtx, stop := context.WithTimeout(context.WithoutCancel(runCtx), cfg.Timeouts.ServerStart())
					defer stop()
					return cl.Server.Stop(stopCtx)
				case err := <-crashed:
					return fmt.Errorf("audio server failed: %w", err)
				case status := <-lost:
					// A crash reports its cause through OnError after the status change.
					select {
					case err := <-crashed:
						return fmt.Errorf("audio server failed: %w", err)
					default:
					}
					return fmt.Errorf("audio server %s", status)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&hold, "hold", false, "Keep running until interrupted, even with a websocket worker")
	return cmd
}

func newServerStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the audio file server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := cl.Server.Stop(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Audio server stopped")
				return nil
			})
		},
	}
}

func newServerRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <audio-root>",
		Short: "Restart the audio file server, optionally on a new folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				// A fresh client only learns the running server by starting it.
				if err := cl.Server.Start(runCtx, root); err != nil {
					return err
				}
				if err := cl.Server.Restart(runCtx, root); err != nil {
					return err
				}
				printServerInfo(cmd.OutOrStdout(), cl.Server.Info())
				return nil
			})
		},
	}
}

func newServerConversionsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "conversions <audio-root>",
		Short: "List converted tracks held in the conversion cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := cl.Server.Start(runCtx, root); err != nil {
					return err
				}
				if err := cl.Server.RefreshMirror(runCtx); err != nil {
					return err
				}
				conversions := cl.Server.Conversions()
				if asJSON {
					return writeJSON(cmd, conversionsJSON(conversions))
				}
				ids := make([]string, 0, len(conversions))
				for id := range conversions {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					rows = append(rows, []string{id, conversions[id]})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Track", "Output"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
