package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/transport"
)

func envelope(t *testing.T, ch protocol.Channel, id string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(ch, id, payload)
	require.NoError(t, err)
	return env
}

func TestStreamWritesNewlineDelimitedJSON(t *testing.T) {
	var out bytes.Buffer
	s := transport.NewStream(strings.NewReader(""), &out)

	require.NoError(t, s.Send(envelope(t, protocol.ServerStop, "a", nil)))
	require.NoError(t, s.Send(envelope(t, protocol.ServerStop, "b", nil)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"channel":"server-stop","correlationId":"a","payload":{}}`, lines[0])
}

func TestStreamReceivePreservesOrderAndSkipsBlankLines(t *testing.T) {
	input := "{\"channel\":\"load-library\",\"correlationId\":\"1\"}\n\n" +
		"{\"channel\":\"server-stop\",\"correlationId\":\"2\"}"
	s := transport.NewStream(strings.NewReader(input), io.Discard)

	first, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.LoadLibrary, first.Channel)

	second, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, "2", second.CorrelationID)

	_, err = s.Receive()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestStreamReceiveRejectsMalformedLine(t *testing.T) {
	s := transport.NewStream(strings.NewReader("not json\n"), io.Discard)
	_, err := s.Receive()
	require.Error(t, err)
}

func TestStreamOverPipes(t *testing.T) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	ui := transport.NewStream(r1, w2)
	worker := transport.NewStream(r2, w1)
	t.Cleanup(func() {
		ui.Close()
		worker.Close()
	})

	go func() {
		_ = ui.Send(envelope(t, protocol.LoadLibrary, "x", protocol.LoadLibraryRequest{Filepath: "/lib.xml"}))
	}()
	got, err := worker.Receive()
	require.NoError(t, err)
	var req protocol.LoadLibraryRequest
	require.NoError(t, got.Decode(&req))
	assert.Equal(t, "/lib.xml", req.Filepath)
}

func TestPipeDeliversBothWaysAndCloses(t *testing.T) {
	a, b := transport.Pipe()

	require.NoError(t, a.Send(envelope(t, protocol.ServerStart, "1", nil)))
	got, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerStart, got.Channel)

	require.NoError(t, b.Send(envelope(t, protocol.ServerStarted, "1", nil)))
	require.NoError(t, b.Close())

	got, err = a.Receive()
	require.NoError(t, err, "buffered envelopes drain after close")
	assert.Equal(t, protocol.ServerStarted, got.Channel)

	_, err = a.Receive()
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, a.Send(envelope(t, protocol.ServerStop, "", nil)), transport.ErrClosed)
}

func TestWebSocketRoundTrip(t *testing.T) {
	listener, err := transport.ListenWebSocket("127.0.0.1:0", logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := transport.DialWebSocket(ctx, "ws://"+listener.Addr()+"/ws")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server, err := listener.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	require.NoError(t, client.Send(envelope(t, protocol.ServerStart, "c1", protocol.ServerStartRequest{AudioFilesRootFolder: "/m"})))
	got, err := server.Receive()
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CorrelationID)

	require.NoError(t, server.Send(envelope(t, protocol.ServerStarted, "c1", protocol.ServerStartedReply{TempConversionFolder: "/tmp/x"})))
	reply, err := client.Receive()
	require.NoError(t, err)
	var started protocol.ServerStartedReply
	require.NoError(t, reply.Decode(&started))
	assert.Equal(t, "/tmp/x", started.TempConversionFolder)
}
