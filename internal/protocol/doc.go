// Package protocol defines the named channels the UI and worker exchange,
// the payload carried on each, and the Envelope wire unit.
//
// Channels are partitioned by direction: client-originated channels flow from
// the UI to the worker, server-originated channels flow back. A name is unique
// within its direction.
package protocol
