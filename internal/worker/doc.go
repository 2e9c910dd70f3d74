// Package worker implements the background process: it owns the loaded
// library session, the conversion pipeline, and the audio file server, and
// answers client requests arriving on the message channel.
//
// The Dispatcher maps each client channel to a handler. Handlers run on their
// own goroutines and reply through the bridge using the request's
// correlation ID; failures become server-error replies.
package worker
