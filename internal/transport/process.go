package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a Stream connected to a spawned worker's stdio.
type Process struct {
	*Stream
	cmd  *exec.Cmd
	once sync.Once
}

// SpawnWorker starts binary with args and connects to its stdin/stdout.
// The worker's stderr is passed through so its logs stay visible.
func SpawnWorker(ctx context.Context, binary string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	cmd.Stderr = os.Stderr
	// Terminal interrupts go to the CLI only; the worker exits when stdin closes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &Process{Stream: NewStream(stdout, stdin), cmd: cmd}, nil
}

// Close closes the worker's stdin, which ends its read loop, then waits for exit.
func (p *Process) Close() error {
	var err error
	p.once.Do(func() {
		closeErr := p.Stream.Close()
		waitErr := p.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) || errors.Is(waitErr, io.ErrClosedPipe) {
			waitErr = nil
		}
		err = errors.Join(closeErr, waitErr)
	})
	return err
}
