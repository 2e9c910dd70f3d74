package library

import (
	"fmt"

	"tempo/internal/services"
)

// WriteState tracks whether the loaded library has unsaved edits and whether
// a write is in flight.
type WriteState string

const (
	WriteNone  WriteState = "none"
	WriteReady WriteState = "ready"
	WriteBusy  WriteState = "busy"
)

var allowedWrites = map[WriteState][]WriteState{
	WriteNone:  {WriteNone, WriteReady},
	WriteReady: {WriteReady, WriteBusy, WriteNone},
	WriteBusy:  {WriteNone, WriteReady},
}

// TransitionWrite validates a write-state change. busy -> busy is rejected so
// two writes never overlap.
func TransitionWrite(from, to WriteState) (WriteState, error) {
	for _, next := range allowedWrites[from] {
		if next == to {
			return to, nil
		}
	}
	return from, services.Wrap(services.ErrIllegalTransition, "library", "write state", fmt.Sprintf("%s -> %s", from, to), nil)
}

// LoadState tracks the library load lifecycle on the client side.
type LoadState string

const (
	LoadNone    LoadState = "none"
	LoadLoading LoadState = "loading"
	LoadLoaded  LoadState = "loaded"
	LoadError   LoadState = "error"
)

var allowedLoads = map[LoadState][]LoadState{
	LoadNone:    {LoadLoading},
	LoadLoading: {LoadLoaded, LoadError},
	LoadLoaded:  {LoadLoading, LoadNone},
	LoadError:   {LoadLoading, LoadNone},
}

// TransitionLoad validates a load-state change.
func TransitionLoad(from, to LoadState) (LoadState, error) {
	for _, next := range allowedLoads[from] {
		if next == to {
			return to, nil
		}
	}
	return from, services.Wrap(services.ErrIllegalTransition, "library", "load state", fmt.Sprintf("%s -> %s", from, to), nil)
}
