// Package logging assembles structured slog loggers and formatting helpers used
// across tempo components.
//
// It owns the console/JSON handlers, routes file output through a rotating
// lumberjack writer, and exposes context-aware helpers so bridge and worker
// code can tag log lines with channels and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// The worker speaks its message protocol over stdout when spawned in stdio
// mode, so worker loggers must be built with stderr or file outputs only.
package logging
