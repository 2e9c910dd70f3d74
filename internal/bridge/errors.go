package bridge

import (
	"errors"
	"fmt"
	"time"

	"tempo/internal/protocol"
	"tempo/internal/services"
)

var (
	// ErrReplaced is returned to a WaitForResponse caller whose registration
	// was displaced by a newer wait on the same channel.
	ErrReplaced = errors.New("wait replaced by newer waiter")
	// ErrClosed is returned once the bridge stops.
	ErrClosed = errors.New("bridge closed")
)

// TimeoutError reports that no reply arrived in time.
type TimeoutError struct {
	Channel protocol.Channel
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.After, e.Channel)
}

// Is makes TimeoutError match services.ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == services.ErrTimeout
}

// RemoteError is a server-error reply correlated with a request.
type RemoteError struct {
	Channel protocol.Channel
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s failed: %s", e.Channel, e.Message)
	}
	return e.Message
}

// Is maps the reported kind back onto the service sentinel errors.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case "timeout":
		return target == services.ErrTimeout
	case "not_found":
		return target == services.ErrNotFound
	case "unsupported":
		return target == services.ErrUnsupported
	case "validation":
		return target == services.ErrValidation
	case "illegal_transition":
		return target == services.ErrIllegalTransition
	case "external_tool":
		return target == services.ErrExternalTool
	default:
		return target == services.ErrIO
	}
}
