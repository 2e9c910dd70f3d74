package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/bridge"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/transport"
	"tempo/internal/worker"
)

func attach(t *testing.T, d *worker.Dispatcher) *bridge.Bridge {
	t.Helper()
	clientConn, workerConn := transport.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	server := bridge.New(workerConn, logging.NewNop())
	client := bridge.New(clientConn, logging.NewNop())
	detach := d.Attach(ctx, server)
	go func() { _ = server.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()
	t.Cleanup(func() {
		detach()
		cancel()
		d.Wait()
	})
	return client
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := worker.NewDispatcher(logging.NewNop())
	d.Handle(protocol.ServerStop, func(context.Context, protocol.Envelope) (any, error) {
		panic("boom")
	})
	client := attach(t, d)

	_, err := client.Request(context.Background(), protocol.ServerStop, nil, 2*time.Second)
	var remote *bridge.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "boom")
	assert.Equal(t, protocol.ServerStop, remote.Channel)
}

func TestDispatcherRunsHandlersConcurrently(t *testing.T) {
	d := worker.NewDispatcher(logging.NewNop())
	release := make(chan struct{})
	d.Handle(protocol.WriteLibrary, func(ctx context.Context, _ protocol.Envelope) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	d.Handle(protocol.ServerStop, func(context.Context, protocol.Envelope) (any, error) {
		return nil, nil
	})
	client := attach(t, d)

	slow := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), protocol.WriteLibrary, nil, 2*time.Second)
		slow <- err
	}()

	env, err := client.Request(context.Background(), protocol.ServerStop, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerReadyForRestart, env.Channel)

	close(release)
	require.NoError(t, <-slow)
}

func TestDispatcherReportsErrorKind(t *testing.T) {
	d := worker.NewDispatcher(logging.NewNop())
	d.Handle(protocol.LoadLibrary, func(context.Context, protocol.Envelope) (any, error) {
		return nil, services.Wrap(services.ErrUnsupported, "test", "load", "nope", nil)
	})
	client := attach(t, d)

	_, err := client.Request(context.Background(), protocol.LoadLibrary, nil, time.Second)
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestDispatcherRejectsServerChannels(t *testing.T) {
	d := worker.NewDispatcher(nil)
	assert.Panics(t, func() {
		d.Handle(protocol.LibraryLoaded, func(context.Context, protocol.Envelope) (any, error) { return nil, nil })
	})
}
