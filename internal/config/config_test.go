package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tempo/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "tempo")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Server.Bind != "127.0.0.1:8457" {
		t.Fatalf("unexpected server bind: %q", cfg.Server.Bind)
	}
	if !strings.HasSuffix(cfg.Paths.ConversionDir, "tempo-conversions") {
		t.Fatalf("unexpected conversion dir: %q", cfg.Paths.ConversionDir)
	}
	if cfg.Timeouts.Ping() != time.Second {
		t.Fatalf("unexpected ping timeout: %s", cfg.Timeouts.Ping())
	}
	if cfg.Timeouts.WriteLibrary() != 20*time.Second {
		t.Fatalf("unexpected write timeout: %s", cfg.Timeouts.WriteLibrary())
	}
	if got := cfg.Encoder.CodecPreferences; len(got) != 3 || got[0] != "libmp3lame" {
		t.Fatalf("unexpected codec preferences: %v", got)
	}
	if cfg.LockPath() != filepath.Join(wantState, "worker.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
state_dir = "~/state"
conversion_dir = "~/conv"

[server]
bind = "127.0.0.1:9000"
allowed_origins = [" http://localhost:5173 ", ""]

[encoder]
codec_preferences = ["LIBSHINE"]

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to be read from %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.ConversionDir != filepath.Join(tempHome, "conv") {
		t.Fatalf("unexpected conversion dir: %q", cfg.Paths.ConversionDir)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if len(cfg.Encoder.CodecPreferences) != 1 || cfg.Encoder.CodecPreferences[0] != "libshine" {
		t.Fatalf("unexpected codec preferences: %v", cfg.Encoder.CodecPreferences)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestLoadAppliesDotEnvAndEnvironment(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	configDir := t.TempDir()
	configPath := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, ".env"), []byte("TEMPO_SERVER_BIND=127.0.0.1:9100\nTEMPO_FFMPEG=/opt/ffmpeg\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("TEMPO_LOG_LEVEL", "debug")
	t.Cleanup(func() {
		os.Unsetenv("TEMPO_SERVER_BIND")
		os.Unsetenv("TEMPO_FFMPEG")
	})

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:9100" {
		t.Fatalf("expected bind from .env, got %q", cfg.Server.Bind)
	}
	if cfg.Encoder.FFmpegBinary != "/opt/ffmpeg" {
		t.Fatalf("expected ffmpeg from .env, got %q", cfg.Encoder.FFmpegBinary)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level from environment, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bind", func(c *config.Config) { c.Server.Bind = "nope" }, "server.bind"},
		{"ping", func(c *config.Config) { c.Timeouts.PingMS = 0 }, "timeouts.ping_ms"},
		{"interval", func(c *config.Config) { c.Timeouts.PingIntervalMS = 500 }, "ping_interval_ms"},
		{"bpm", func(c *config.Config) { c.Analysis.MaxBPM = 10 }, "analysis.min_bpm"},
		{"transport", func(c *config.Config) { c.Transport.Mode = "carrier-pigeon" }, "transport.mode"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleProducesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:8457" {
		t.Fatalf("unexpected sample bind: %q", cfg.Server.Bind)
	}
}
