package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"tempo/internal/config"
	"tempo/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report configuration, external tools, and worker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			configPath := ctx.configPath
			if configPath == "" {
				configPath = "defaults"
			}

			var tools []statusRow
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				tools = append(tools, toolRow(status))
			}
			workerKind, workerMsg := workerState(cfg)
			serverKind, serverMsg := pingServer(cmd.Context(), cfg)

			for i, r := range []report{
				{title: "Configuration", rows: []statusRow{
					infoRow("Config", configPath),
					infoRow("Transport", transportLabel(cfg)),
					infoRow("State dir", cfg.Paths.StateDir),
					infoRow("Conversions", cfg.Paths.ConversionDir),
				}},
				{title: "Tools", rows: tools},
				{title: "Worker", rows: []statusRow{
					{label: "Worker", kind: workerKind, message: workerMsg},
					{label: "Audio server", kind: serverKind, message: serverMsg},
				}},
			} {
				if i > 0 {
					fmt.Fprintln(out)
				}
				r.render(out)
			}
			return nil
		},
	}
}

func transportLabel(cfg *config.Config) string {
	if cfg.Transport.Mode == "websocket" {
		return "websocket ws://" + cfg.Transport.Address + "/ws"
	}
	return "stdio (worker spawned per command)"
}

// workerState tries the worker lock without holding it.
func workerState(cfg *config.Config) (statusKind, string) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return statusError, err.Error()
	}
	if !locked {
		return statusOK, "running"
	}
	_ = lock.Unlock()
	return statusInfo, "not running"
}

// pingServer checks the configured bind address. Ephemeral ports cannot be
// checked from here.
func pingServer(ctx context.Context, cfg *config.Config) (statusKind, string) {
	_, port, err := net.SplitHostPort(cfg.Server.Bind)
	if err != nil || port == "0" {
		return statusInfo, "address not fixed; use `tempo server start`"
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Ping())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServerURL()+"/ping", nil)
	if err != nil {
		return statusError, err.Error()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return statusInfo, "not reachable at " + cfg.ServerURL()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError, strings.TrimSpace(string(body))
	}
	return statusOK, "serving at " + cfg.ServerURL()
}
