package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"tempo/internal/protocol"
)

const maxLineBytes = 64 << 20

// Stream is a Conn over newline-delimited JSON.
type Stream struct {
	reader  *bufio.Reader
	writer  io.Writer
	closers []io.Closer

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStream wraps r and w. Close closes any of them that implement io.Closer.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{
		reader: bufio.NewReaderSize(r, 64<<10),
		writer: w,
		closed: make(chan struct{}),
	}
	for _, v := range []any{w, r} {
		if c, ok := v.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}
	return s
}

// Send writes env followed by a newline.
func (s *Stream) Send(env protocol.Envelope) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Receive blocks for the next envelope. Blank lines are skipped. It returns
// io.EOF when the peer closes its side.
func (s *Stream) Receive() (protocol.Envelope, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			select {
			case <-s.closed:
				return protocol.Envelope{}, ErrClosed
			default:
			}
			return protocol.Envelope{}, err
		}
		if len(line) == 0 {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return protocol.Envelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		return env, nil
	}
}

func (s *Stream) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLineBytes {
			return nil, fmt.Errorf("envelope exceeds %d bytes", maxLineBytes)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// Close closes the underlying reader and writer.
func (s *Stream) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.closed)
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
