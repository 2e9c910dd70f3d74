package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"tempo/internal/logging"
	"tempo/internal/transport"
	"tempo/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var stdio bool
	var listen string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker process",
		Long: "Run the worker that owns the library file, the conversion cache, and the audio file server.\n" +
			"With --stdio it speaks newline-delimited JSON on stdin/stdout; otherwise it accepts\n" +
			"websocket connections on transport.address.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerFor("worker")

			useStdio := stdio || (cfg.Transport.Mode == "stdio" && listen == "")
			if useStdio && isatty.IsTerminal(os.Stdin.Fd()) {
				logger.Warn("worker reading requests from a terminal; it is normally spawned by the CLI")
			}

			w, err := worker.New(cmd.Context(), cfg, logger, worker.Deps{})
			if err != nil {
				if errors.Is(err, worker.ErrAlreadyRunning) {
					return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
				}
				return err
			}
			defer func() {
				if err := w.Close(); err != nil {
					logger.Warn("worker shutdown incomplete", logging.Error(err))
				}
			}()

			if useStdio {
				return w.Serve(cmd.Context(), transport.NewStream(os.Stdin, os.Stdout))
			}

			addr := listen
			if addr == "" {
				addr = cfg.Transport.Address
			}
			l, err := transport.ListenWebSocket(addr, logger)
			if err != nil {
				return err
			}
			defer l.Close()
			logger.Info("worker listening", logging.String("address", "ws://"+l.Addr()+"/ws"))
			return w.ServeListener(cmd.Context(), l)
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve a single client over stdin/stdout")
	cmd.Flags().StringVar(&listen, "listen", "", "Websocket listen address (defaults to transport.address)")
	return cmd
}
