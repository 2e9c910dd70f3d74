package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	ConversionDir string `toml:"conversion_dir"`
}

// Server contains the embedded audio file server settings.
type Server struct {
	Bind           string   `toml:"bind"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Timeouts holds request deadlines in milliseconds.
type Timeouts struct {
	PingMS         int `toml:"ping_ms"`
	PingIntervalMS int `toml:"ping_interval_ms"`
	LoadLibraryMS  int `toml:"load_library_ms"`
	WriteLibraryMS int `toml:"write_library_ms"`
	WriteTagMS     int `toml:"write_tag_ms"`
	AnalysisMS     int `toml:"analysis_ms"`
	ServerStartMS  int `toml:"server_start_ms"`
	ConvertMS      int `toml:"convert_ms"`
}

// Encoder contains transcoding settings.
type Encoder struct {
	FFmpegBinary     string   `toml:"ffmpeg_binary"`
	FFprobeBinary    string   `toml:"ffprobe_binary"`
	CodecPreferences []string `toml:"codec_preferences"`
	Bitrate          string   `toml:"bitrate"`
	SampleRate       int      `toml:"sample_rate"`
	MinFreeMiB       int      `toml:"min_free_mib"`
}

// Analysis contains beat detection settings.
type Analysis struct {
	SampleRate int     `toml:"sample_rate"`
	MinBPM     float64 `toml:"min_bpm"`
	MaxBPM     float64 `toml:"max_bpm"`
}

// Transport selects how the CLI reaches the worker.
type Transport struct {
	Mode    string `toml:"mode"`
	Address string `toml:"address"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for tempo.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and conversion directories
//   - Server: audio file server bind address and CORS origins
//   - Timeouts: per-request deadlines used by the client slices
//   - Encoder: ffmpeg/ffprobe binaries and codec preferences
//   - Analysis: beat detection bounds
//   - Transport: stdio or websocket message channel
//   - Logging: log format, level, and rotation
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Timeouts  Timeouts  `toml:"timeouts"`
	Encoder   Encoder   `toml:"encoder"`
	Analysis  Analysis  `toml:"analysis"`
	Transport Transport `toml:"transport"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tempo/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files beside the config and in the working directory.
// Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	seen := map[string]struct{}{}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %s: %w", abs, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tempo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the worker writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ConversionDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the worker single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "worker.lock")
}

// ServerURL returns the base URL clients use to reach the audio file server.
func (c *Config) ServerURL() string {
	return "http://" + c.Server.Bind
}

func ms(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}

// Ping returns the liveness check deadline.
func (t Timeouts) Ping() time.Duration { return ms(t.PingMS) }

// PingInterval returns the delay between liveness checks.
func (t Timeouts) PingInterval() time.Duration { return ms(t.PingIntervalMS) }

// LoadLibrary returns the library load deadline.
func (t Timeouts) LoadLibrary() time.Duration { return ms(t.LoadLibraryMS) }

// WriteLibrary returns the library write deadline.
func (t Timeouts) WriteLibrary() time.Duration { return ms(t.WriteLibraryMS) }

// WriteTag returns the tag write deadline.
func (t Timeouts) WriteTag() time.Duration { return ms(t.WriteTagMS) }

// Analysis returns the per-track analysis deadline.
func (t Timeouts) Analysis() time.Duration { return ms(t.AnalysisMS) }

// ServerStart returns how long a client waits for server-started.
func (t Timeouts) ServerStart() time.Duration { return ms(t.ServerStartMS) }

// Convert bounds one POST /convert-to-mp3 call.
func (t Timeouts) Convert() time.Duration { return ms(t.ConvertMS) }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultConversionDir() string {
	return filepath.Join(os.TempDir(), "tempo-conversions")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
