package bridge_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/bridge"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/transport"
)

func newTestBridge(t *testing.T) (*bridge.Bridge, transport.Conn) {
	t.Helper()
	local, peer := transport.Pipe()
	b := bridge.New(local, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		peer.Close()
		<-done
	})
	return b, peer
}

func receive(t *testing.T, conn transport.Conn) protocol.Envelope {
	t.Helper()
	env, err := conn.Receive()
	require.NoError(t, err)
	return env
}

func reply(t *testing.T, conn transport.Conn, ch protocol.Channel, id string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(ch, id, payload)
	require.NoError(t, err)
	require.NoError(t, conn.Send(env))
}

func TestRequestResolvesWithCorrelatedReply(t *testing.T) {
	b, peer := newTestBridge(t)

	go func() {
		req := receive(t, peer)
		reply(t, peer, protocol.ServerStarted, req.CorrelationID, protocol.ServerStartedReply{TempConversionFolder: "/tmp/c"})
	}()

	env, err := b.Request(context.Background(), protocol.ServerStart, protocol.ServerStartRequest{AudioFilesRootFolder: "/m"}, time.Second)
	require.NoError(t, err)
	var started protocol.ServerStartedReply
	require.NoError(t, env.Decode(&started))
	assert.Equal(t, "/tmp/c", started.TempConversionFolder)
	assert.Zero(t, b.PendingCount())
}

func TestRequestTimeoutReleasesPendingEntry(t *testing.T) {
	b, peer := newTestBridge(t)
	go func() { _, _ = peer.Receive() }()

	start := time.Now()
	_, err := b.Request(context.Background(), protocol.LoadLibrary, protocol.LoadLibraryRequest{Filepath: "/x"}, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTimeout))
	var timeout *bridge.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, protocol.LibraryLoaded, timeout.Channel)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, b.PendingCount())
}

func TestLateReplyDoesNotResolveNextRequest(t *testing.T) {
	b, peer := newTestBridge(t)

	first := make(chan string, 1)
	go func() {
		req := receive(t, peer)
		first <- req.CorrelationID
	}()
	_, err := b.Request(context.Background(), protocol.LoadLibrary, nil, 30*time.Millisecond)
	require.Error(t, err)
	staleID := <-first

	go func() {
		req := receive(t, peer)
		reply(t, peer, protocol.LibraryLoaded, staleID, protocol.LibraryLoadedReply{Filepath: "stale"})
		reply(t, peer, protocol.LibraryLoaded, req.CorrelationID, protocol.LibraryLoadedReply{Filepath: "fresh"})
	}()
	env, err := b.Request(context.Background(), protocol.LoadLibrary, nil, time.Second)
	require.NoError(t, err)
	var loaded protocol.LibraryLoadedReply
	require.NoError(t, env.Decode(&loaded))
	assert.Equal(t, "fresh", loaded.Filepath)
}

func TestCorrelatedServerErrorFailsRequest(t *testing.T) {
	b, peer := newTestBridge(t)
	go func() {
		req := receive(t, peer)
		reply(t, peer, protocol.ServerError, req.CorrelationID, protocol.ServerErrorReply{
			Error: "root folder is empty", Kind: "validation", Channel: protocol.ServerStart,
		})
	}()

	_, err := b.Request(context.Background(), protocol.ServerStart, nil, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
	var remote *bridge.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.ServerStart, remote.Channel)
	assert.Contains(t, err.Error(), "root folder is empty")
}

func TestUncorrelatedReplyFallsBackToChannelIdentity(t *testing.T) {
	b, peer := newTestBridge(t)
	go func() {
		_ = receive(t, peer)
		reply(t, peer, protocol.AudioTagWriteComplete, "", nil)
	}()

	_, err := b.Request(context.Background(), protocol.WriteAudioTag, protocol.WriteAudioTagRequest{TagName: "bpm"}, time.Second)
	require.NoError(t, err)
}

func TestWaitForResponseReplacesPreviousWaiter(t *testing.T) {
	b, peer := newTestBridge(t)

	firstErr := make(chan error, 1)
	go func() {
		_, err := b.WaitForResponse(context.Background(), protocol.ServerReadyForRestart, time.Second)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return b.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		_, err := b.WaitForResponse(context.Background(), protocol.ServerReadyForRestart, time.Second)
		secondDone <- err
	}()

	assert.ErrorIs(t, <-firstErr, bridge.ErrReplaced)
	require.Eventually(t, func() bool { return b.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	reply(t, peer, protocol.ServerReadyForRestart, "", nil)
	assert.NoError(t, <-secondDone)
	assert.Zero(t, b.PendingCount())
}

func TestWaitForResponseHonoursContext(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := b.WaitForResponse(ctx, protocol.LibraryLoaded, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.PendingCount())
}

func TestHandleOnceFiresOnceAndCancels(t *testing.T) {
	b, peer := newTestBridge(t)

	var fired atomic.Int32
	b.HandleOnce(protocol.ServerError, func(protocol.Envelope) { fired.Add(1) })
	var cancelled atomic.Int32
	cancel := b.HandleOnce(protocol.ServerError, func(protocol.Envelope) { cancelled.Add(1) })
	cancel()
	cancel()

	reply(t, peer, protocol.ServerError, "", protocol.ServerErrorReply{Error: "boom"})
	reply(t, peer, protocol.ServerError, "", protocol.ServerErrorReply{Error: "again"})

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, fired.Load())
	assert.Zero(t, cancelled.Load())
}

func TestSubscribeReceivesEveryEnvelope(t *testing.T) {
	b, peer := newTestBridge(t)

	got := make(chan string, 4)
	cancel := b.Subscribe(protocol.LibraryFileChanged, func(env protocol.Envelope) {
		var ev protocol.LibraryFileChangedEvent
		_ = env.Decode(&ev)
		got <- ev.Filepath
	})
	reply(t, peer, protocol.LibraryFileChanged, "", protocol.LibraryFileChangedEvent{Filepath: "a"})
	reply(t, peer, protocol.LibraryFileChanged, "", protocol.LibraryFileChangedEvent{Filepath: "b"})
	assert.Equal(t, "a", <-got)
	assert.Equal(t, "b", <-got)
	cancel()
}

func TestSendDoesNotBlockAndPreservesOrder(t *testing.T) {
	b, peer := newTestBridge(t)

	for i := range 200 {
		require.NoError(t, b.Send(protocol.WriteAudioTag, protocol.WriteAudioTagRequest{Value: string(rune('a' + i%26))}))
	}
	for i := range 200 {
		env := receive(t, peer)
		var req protocol.WriteAudioTagRequest
		require.NoError(t, env.Decode(&req))
		require.Equal(t, string(rune('a'+i%26)), req.Value)
	}
}

func TestRunFailsPendingOnClose(t *testing.T) {
	local, peer := transport.Pipe()
	b := bridge.New(local, logging.NewNop())
	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	waitErr := make(chan error, 1)
	go func() {
		_, err := b.WaitForResponse(context.Background(), protocol.LibraryLoaded, time.Minute)
		waitErr <- err
	}()
	require.Eventually(t, func() bool { return b.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, peer.Close())
	assert.ErrorIs(t, <-waitErr, bridge.ErrClosed)
	assert.NoError(t, <-runDone)
	assert.ErrorIs(t, b.Send(protocol.ServerStop, nil), bridge.ErrClosed)
}
