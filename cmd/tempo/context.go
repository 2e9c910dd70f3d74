package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"tempo/internal/bridge"
	"tempo/internal/client"
	"tempo/internal/config"
	"tempo/internal/deps"
	"tempo/internal/logging"
	"tempo/internal/transport"
)

// dialFunc opens the message channel to a worker.
type dialFunc func(ctx context.Context, cfg *config.Config, configPath string) (transport.Conn, error)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	dial     dialFunc
	defaults client.Options
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dial:       dialWorker,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		resolveTools(cfg)
		c.config = cfg
		if exists {
			c.configPath = resolved
		}
	})
	return c.config, c.configErr
}

// resolveTools prefers ffmpeg and ffprobe shipped next to the tempo binary.
func resolveTools(cfg *config.Config) {
	for _, target := range []*string{&cfg.Encoder.FFmpegBinary, &cfg.Encoder.FFprobeBinary} {
		if resolved, err := deps.ResolveBinary(*target); err == nil {
			*target = resolved
		}
	}
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerFor builds the process logger once. It never writes to stdout.
func (c *commandContext) loggerFor(role string) *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue(), role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// withClient connects to a worker, runs fn against a client wired over that
// connection, then tears everything down.
func (c *commandContext) withClient(cmd *cobra.Command, opts client.Options, fn func(context.Context, *client.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := c.loggerFor("cli")

	conn, err := c.dial(ctx, cfg, c.configPath)
	if err != nil {
		return wrapDialError(err, cfg)
	}
	// The bridge outlives ctx so commands can still send a stop on interrupt.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := bridge.New(conn, logger)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := b.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("bridge stopped", logging.Error(err))
		}
	}()

	if opts.Logger == nil {
		opts.Logger = logger
	}
	if opts.Decoder == nil {
		opts.Decoder = c.defaults.Decoder
	}
	if opts.Detector == nil {
		opts.Detector = c.defaults.Detector
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = c.defaults.HTTPClient
	}
	cl := client.New(b, cfg, opts)
	defer func() {
		cl.Close()
		cancel()
		_ = conn.Close()
		<-runDone
	}()
	return fn(ctx, cl)
}

func dialWorker(ctx context.Context, cfg *config.Config, configPath string) (transport.Conn, error) {
	if cfg.Transport.Mode == "websocket" {
		return transport.DialWebSocket(ctx, "ws://"+cfg.Transport.Address+"/ws")
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate tempo executable: %w", err)
	}
	args := []string{"worker", "--stdio"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	// The worker outlives cancellation long enough to release its lock.
	return transport.SpawnWorker(context.WithoutCancel(ctx), self, args...)
}

func wrapDialError(err error, cfg *config.Config) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to worker: %s refused the connection; start one with `tempo worker`", cfg.Transport.Address)
	default:
		return fmt.Errorf("connect to worker: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
