// Package transport carries protocol envelopes between the UI and worker
// processes.
//
// Three implementations satisfy Conn: Stream speaks newline-delimited JSON
// over a reader/writer pair (the worker's stdio when spawned by the CLI),
// WebSocket carries one envelope per text frame for a long-running worker,
// and Pipe is an in-memory pair used by tests. Every implementation keeps
// per-direction ordering.
package transport
