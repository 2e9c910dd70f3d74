// Package config loads, normalizes, and validates tempo configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, overlays a .env file, and honours TEMPO_*
// environment overrides. The Config type centralizes every knob the worker
// and CLI need: the conversion folder, HTTP bind address, request timeouts,
// encoder binaries, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
