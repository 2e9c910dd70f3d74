// Package client holds the UI-side orchestration slices. Each slice is a
// small state machine that talks to the worker through the request bridge or
// the audio server's HTTP surface, and always returns to a resting state when
// a call fails or times out.
package client
