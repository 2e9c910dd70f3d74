package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tempo/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test,
// an ephemeral server port, and short timeouts.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = ""
	cfgVal.Paths.ConversionDir = filepath.Join(base, "conversions")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Encoder.MinFreeMiB = 0
	cfgVal.Timeouts.PingMS = 200
	cfgVal.Timeouts.PingIntervalMS = 50_000
	cfgVal.Timeouts.LoadLibraryMS = 2000
	cfgVal.Timeouts.WriteLibraryMS = 2000
	cfgVal.Timeouts.WriteTagMS = 500
	cfgVal.Timeouts.AnalysisMS = 2000
	cfgVal.Timeouts.ServerStartMS = 2000
	cfgVal.Timeouts.ConvertMS = 2000

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTimeouts overrides the request timeouts.
func WithTimeouts(timeouts config.Timeouts) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Timeouts = timeouts
	}
}

// WithScript writes an executable shell script named name into a bin
// directory, prepends it to PATH, and points the matching encoder binary
// setting at it when name is ffmpeg or ffprobe.
func WithScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}
		switch name {
		case "ffmpeg":
			b.cfg.Encoder.FFmpegBinary = target
		case "ffprobe":
			b.cfg.Encoder.FFprobeBinary = target
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithConfig applies fn to the generated configuration.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}
