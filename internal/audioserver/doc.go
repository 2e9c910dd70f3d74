// Package audioserver hosts the embedded HTTP server that streams audio files
// from the library root and exposes on-demand MP3 conversion.
//
// One Server exists per worker process. Start is idempotent: a second start
// while running reports the existing instance and only re-targets the
// static root.
package audioserver
