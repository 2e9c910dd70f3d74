// Package services defines shared utilities consumed by the worker handlers,
// the audio file server, and the client slices.
//
// Key responsibilities:
//   - Context helpers that stamp channel names, correlation identifiers, and
//     track IDs for logging.
//   - Structured error markers plus the Wrap helper so failures classify the
//     same way at the HTTP boundary, in server-error replies, and in CLI output.
package services
