package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeEncoder()
	c.normalizeTransport()
	c.normalizeLogging()
	return nil
}

// applyEnv overlays TEMPO_* variables onto file values.
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"TEMPO_STATE_DIR":         &c.Paths.StateDir,
		"TEMPO_LOG_DIR":           &c.Paths.LogDir,
		"TEMPO_CONVERSION_DIR":    &c.Paths.ConversionDir,
		"TEMPO_SERVER_BIND":       &c.Server.Bind,
		"TEMPO_FFMPEG":            &c.Encoder.FFmpegBinary,
		"TEMPO_FFPROBE":           &c.Encoder.FFprobeBinary,
		"TEMPO_TRANSPORT_MODE":    &c.Transport.Mode,
		"TEMPO_TRANSPORT_ADDRESS": &c.Transport.Address,
		"TEMPO_LOG_LEVEL":         &c.Logging.Level,
		"TEMPO_LOG_FORMAT":        &c.Logging.Format,
	}
	for key, target := range overrides {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("TEMPO_MIN_FREE_MIB"); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			c.Encoder.MinFreeMiB = parsed
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ConversionDir) == "" {
		c.Paths.ConversionDir = defaultConversionDir()
	}
	if c.Paths.ConversionDir, err = expandPath(c.Paths.ConversionDir); err != nil {
		return fmt.Errorf("paths.conversion_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, "*")
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizeEncoder() {
	c.Encoder.FFmpegBinary = strings.TrimSpace(c.Encoder.FFmpegBinary)
	if c.Encoder.FFmpegBinary == "" {
		c.Encoder.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encoder.FFprobeBinary = strings.TrimSpace(c.Encoder.FFprobeBinary)
	if c.Encoder.FFprobeBinary == "" {
		c.Encoder.FFprobeBinary = defaultFFprobeBinary
	}
	prefs := make([]string, 0, len(c.Encoder.CodecPreferences))
	for _, codec := range c.Encoder.CodecPreferences {
		if trimmed := strings.ToLower(strings.TrimSpace(codec)); trimmed != "" {
			prefs = append(prefs, trimmed)
		}
	}
	if len(prefs) == 0 {
		prefs = append(prefs, defaultCodecPreferences...)
	}
	c.Encoder.CodecPreferences = prefs
	c.Encoder.Bitrate = strings.TrimSpace(c.Encoder.Bitrate)
	if c.Encoder.Bitrate == "" {
		c.Encoder.Bitrate = defaultBitrate
	}
}

func (c *Config) normalizeTransport() {
	c.Transport.Mode = strings.ToLower(strings.TrimSpace(c.Transport.Mode))
	if c.Transport.Mode == "" {
		c.Transport.Mode = defaultTransportMode
	}
	c.Transport.Address = strings.TrimSpace(c.Transport.Address)
	if c.Transport.Address == "" {
		c.Transport.Address = defaultTransportAddr
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
