package audioserver

import (
	"fmt"

	"tempo/internal/services"
)

// Status is the lifecycle state of the audio file server.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusStarted  Status = "started"
	StatusFailed   Status = "failed"
)

var allowedTransitions = map[Status][]Status{
	StatusStopped:  {StatusStarting},
	StatusStarting: {StatusStarted, StatusFailed},
	StatusStarted:  {StatusStopped, StatusStarting, StatusFailed},
	StatusFailed:   {StatusStarting, StatusStopped},
}

// Transition validates a lifecycle change.
func Transition(from, to Status) (Status, error) {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, services.Wrap(services.ErrIllegalTransition, "audioserver", "transition", fmt.Sprintf("%s -> %s", from, to), nil)
}
