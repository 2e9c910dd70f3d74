package transport

import (
	"sync"

	"tempo/internal/protocol"
)

type pipeEnd struct {
	in   <-chan protocol.Envelope
	out  chan<- protocol.Envelope
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory ends. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan protocol.Envelope, 64)
	ba := make(chan protocol.Envelope, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: ba, out: ab, done: done, once: once},
		&pipeEnd{in: ab, out: ba, done: done, once: once}
}

func (p *pipeEnd) Send(env protocol.Envelope) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- env:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Receive drains buffered envelopes before reporting ErrClosed.
func (p *pipeEnd) Receive() (protocol.Envelope, error) {
	select {
	case env := <-p.in:
		return env, nil
	case <-p.done:
		select {
		case env := <-p.in:
			return env, nil
		default:
		}
		return protocol.Envelope{}, ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
