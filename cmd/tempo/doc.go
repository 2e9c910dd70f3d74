// Package main hosts the tempo CLI entrypoint and command graph.
//
// The same binary plays both roles of the application. `tempo worker` runs
// the worker process: it owns the library file, the conversion cache, and the
// embedded audio file server, and answers requests over stdio or a websocket.
// Every other command is a client: it connects to a worker (spawning one over
// stdio unless transport.mode is websocket), drives the library, server, and
// analysis slices, and renders the results.
package main
