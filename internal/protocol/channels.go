package protocol

// Channel names a logical operation on the message channel.
type Channel string

// Direction says which process originates a channel.
type Direction int

const (
	ClientToServer Direction = iota + 1
	ServerToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client"
	case ServerToClient:
		return "server"
	default:
		return "unknown"
	}
}

// Client-originated channels.
const (
	LoadLibrary   Channel = "load-library"
	WriteLibrary  Channel = "write-library"
	WriteAudioTag Channel = "write-audio-tag"
	ServerStart   Channel = "server-start"
	ServerStop    Channel = "server-stop"
)

// Server-originated channels.
const (
	LibraryLoaded         Channel = "library-loaded"
	LibraryWriteComplete  Channel = "library-write-complete"
	AudioTagWriteComplete Channel = "audio-tag-write-complete"
	ServerStarted         Channel = "server-started"
	ServerError           Channel = "server-error"
	ServerReadyForRestart Channel = "server-ready-for-restart"
	LibraryFileChanged    Channel = "library-file-changed"
)

var registry = map[Channel]Direction{
	LoadLibrary:           ClientToServer,
	WriteLibrary:          ClientToServer,
	WriteAudioTag:         ClientToServer,
	ServerStart:           ClientToServer,
	ServerStop:            ClientToServer,
	LibraryLoaded:         ServerToClient,
	LibraryWriteComplete:  ServerToClient,
	AudioTagWriteComplete: ServerToClient,
	ServerStarted:         ServerToClient,
	ServerError:           ServerToClient,
	ServerReadyForRestart: ServerToClient,
	LibraryFileChanged:    ServerToClient,
}

// replies maps each request channel to the channel its success reply uses.
var replies = map[Channel]Channel{
	LoadLibrary:   LibraryLoaded,
	WriteLibrary:  LibraryWriteComplete,
	WriteAudioTag: AudioTagWriteComplete,
	ServerStart:   ServerStarted,
	ServerStop:    ServerReadyForRestart,
}

// Direction reports which side originates c.
func (c Channel) Direction() (Direction, bool) {
	d, ok := registry[c]
	return d, ok
}

// Reply returns the success reply channel for a client request channel.
func (c Channel) Reply() (Channel, bool) {
	r, ok := replies[c]
	return r, ok
}

// Channels lists every registered channel originating from d.
func Channels(d Direction) []Channel {
	out := make([]Channel, 0, len(registry))
	for ch, dir := range registry {
		if dir == d {
			out = append(out, ch)
		}
	}
	return out
}
