// Package bridge layers one-shot request/response calls on top of the
// fire-and-forget envelope channel.
//
// Send enqueues an envelope and returns immediately. Request sends with a
// fresh correlation ID and waits for the matching reply (or a server-error
// carrying the same ID) until a timeout. WaitForResponse waits for the next
// envelope on a channel without a request; only one such waiter may exist per
// channel and a newer one replaces the older. HandleOnce and Subscribe
// register callbacks for pushed events. Every registration is released on
// success, timeout, context cancellation, or explicit cancel.
//
// Both processes use a Bridge: the UI to call the worker, the worker to
// receive requests (via Subscribe) and send replies.
package bridge
