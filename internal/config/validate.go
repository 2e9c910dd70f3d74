package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	return validateBind("server.bind", c.Server.Bind)
}

func validateBind(key, bind string) error {
	_, portText, err := net.SplitHostPort(bind)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%s: invalid port %q", key, portText)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if err := ensurePositiveMap(map[string]int{
		"timeouts.ping_ms":          c.Timeouts.PingMS,
		"timeouts.ping_interval_ms": c.Timeouts.PingIntervalMS,
		"timeouts.load_library_ms":  c.Timeouts.LoadLibraryMS,
		"timeouts.write_library_ms": c.Timeouts.WriteLibraryMS,
		"timeouts.write_tag_ms":     c.Timeouts.WriteTagMS,
		"timeouts.analysis_ms":      c.Timeouts.AnalysisMS,
		"timeouts.server_start_ms":  c.Timeouts.ServerStartMS,
		"timeouts.convert_ms":       c.Timeouts.ConvertMS,
	}); err != nil {
		return err
	}
	if c.Timeouts.PingIntervalMS <= c.Timeouts.PingMS {
		return errors.New("timeouts.ping_interval_ms must be greater than timeouts.ping_ms")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.SampleRate <= 0 {
		return errors.New("encoder.sample_rate must be positive")
	}
	if c.Encoder.MinFreeMiB < 0 {
		return errors.New("encoder.min_free_mib must not be negative")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.SampleRate <= 0 {
		return errors.New("analysis.sample_rate must be positive")
	}
	if c.Analysis.MinBPM <= 0 || c.Analysis.MaxBPM <= c.Analysis.MinBPM {
		return errors.New("analysis.min_bpm must be positive and below analysis.max_bpm")
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Transport.Mode {
	case "stdio":
		return nil
	case "websocket":
		return validateBind("transport.address", c.Transport.Address)
	default:
		return fmt.Errorf("transport.mode: unsupported value %q", c.Transport.Mode)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation values must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
