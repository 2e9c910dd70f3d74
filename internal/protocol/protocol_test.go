package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/protocol"
)

func TestChannelNamesUniquePerDirection(t *testing.T) {
	for _, dir := range []protocol.Direction{protocol.ClientToServer, protocol.ServerToClient} {
		seen := map[protocol.Channel]struct{}{}
		for _, ch := range protocol.Channels(dir) {
			_, dup := seen[ch]
			assert.False(t, dup, "duplicate channel %s", ch)
			seen[ch] = struct{}{}
		}
	}
	assert.Len(t, protocol.Channels(protocol.ClientToServer), 5)
}

func TestEveryRequestHasServerReply(t *testing.T) {
	for _, ch := range protocol.Channels(protocol.ClientToServer) {
		reply, ok := ch.Reply()
		require.True(t, ok, "no reply for %s", ch)
		dir, ok := reply.Direction()
		require.True(t, ok)
		assert.Equal(t, protocol.ServerToClient, dir, "reply for %s", ch)
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	env, err := protocol.NewEnvelope(protocol.ServerStart, "c-1", protocol.ServerStartRequest{AudioFilesRootFolder: "/music"})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"server-start","correlationId":"c-1","payload":{"audioFilesRootFolder":"/music"}}`, string(data))

	var decoded protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	var req protocol.ServerStartRequest
	require.NoError(t, decoded.Decode(&req))
	assert.Equal(t, "/music", req.AudioFilesRootFolder)
}

func TestNilPayloadEncodesEmptyObject(t *testing.T) {
	env, err := protocol.NewEnvelope(protocol.ServerStop, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(env.Payload))
}

func TestDecodeReportsChannel(t *testing.T) {
	env := protocol.Envelope{Channel: protocol.WriteAudioTag, Payload: json.RawMessage(`[1,2]`)}
	var req protocol.WriteAudioTagRequest
	err := env.Decode(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write-audio-tag")
}
