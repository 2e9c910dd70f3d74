package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"tempo/internal/bridge"
	"tempo/internal/config"
	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/tags"
)

// LibrarySlice mirrors the worker's library and drives load and write.
type LibrarySlice struct {
	msg      Messenger
	timeouts config.Timeouts
	logger   *slog.Logger
	analysis *AnalysisSlice
	server   *ServerSlice

	mu         sync.RWMutex
	loadState  library.LoadState
	writeState library.WriteState
	lib        *library.Library
	index      library.Index
	meta       library.Meta
	loadErr    error
	inputPath  string
	outputPath string

	// edited records a Mutate made after the in-flight write was encoded.
	edited bool
}

func newLibrarySlice(msg Messenger, timeouts config.Timeouts, logger *slog.Logger, an *AnalysisSlice, server *ServerSlice) *LibrarySlice {
	return &LibrarySlice{
		msg:        msg,
		timeouts:   timeouts,
		logger:     logging.NewComponentLogger(logger, "library-slice"),
		analysis:   an,
		server:     server,
		loadState:  library.LoadNone,
		writeState: library.WriteNone,
	}
}

// Load asks the worker for the library at path.
func (s *LibrarySlice) Load(ctx context.Context, path string, reload bool) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrValidation, "client", "load library", "filepath is required", nil)
	}
	s.mu.Lock()
	next, err := library.TransitionLoad(s.loadState, library.LoadLoading)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.loadState = next
	s.mu.Unlock()

	env, err := s.msg.Request(ctx, protocol.LoadLibrary,
		protocol.LoadLibraryRequest{Filepath: path, ReloadFromDisk: reload}, s.timeouts.LoadLibrary())
	var reply protocol.LibraryLoadedReply
	if err == nil {
		err = env.Decode(&reply)
	}
	if err == nil && reply.Library == nil {
		err = services.Wrap(services.ErrValidation, "client", "load library", "reply carried no library", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.loadState = library.LoadError
		s.loadErr = err
		logging.WarnWithContext(s.logger, "library load failed", "library_load_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "previously loaded library kept"),
			logging.String(logging.FieldErrorHint, "check the path and retry"))
		return err
	}
	s.lib = reply.Library
	s.index = library.BuildIndex(reply.Library)
	s.meta = reply.LibraryMeta
	s.inputPath = reply.Filepath
	if s.outputPath == "" || s.outputPath == s.inputPath {
		s.outputPath = reply.Filepath
	}
	s.loadErr = nil
	s.loadState = library.LoadLoaded
	s.writeState = library.WriteNone
	s.edited = false
	s.logger.Info("library loaded",
		logging.String("path", reply.Filepath),
		logging.Int("tracks", reply.LibraryMeta.TrackCount),
		logging.Int("playlists", reply.LibraryMeta.PlaylistCount))
	return nil
}

// LoadState returns the load state and the last load error.
func (s *LibrarySlice) LoadState() (library.LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadState, s.loadErr
}

// WriteState returns the write state.
func (s *LibrarySlice) WriteState() library.WriteState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeState
}

// Library returns the mirrored library, or nil.
func (s *LibrarySlice) Library() *library.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lib
}

// Index returns lookups derived from the mirrored library.
func (s *LibrarySlice) Index() library.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Meta returns the summary sent with the last load.
func (s *LibrarySlice) Meta() library.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Paths returns the input and output library paths.
func (s *LibrarySlice) Paths() (input, output string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputPath, s.outputPath
}

// SetOutputPath chooses where the next write lands.
func (s *LibrarySlice) SetOutputPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputPath = path
}

// Track resolves a track by persistent or numeric ID.
func (s *LibrarySlice) Track(id string) (library.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	track, ok := s.lib.FindTrack(id)
	if !ok {
		return library.Track{}, false
	}
	return *track, true
}

// Mutate edits the mirrored library and marks it as having unsaved changes.
// An edit made while a write is in flight keeps the changes unsaved after
// that write succeeds.
func (s *LibrarySlice) Mutate(fn func(*library.Library) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lib == nil {
		return services.Wrap(services.ErrValidation, "client", "mutate", "no library loaded", nil)
	}
	if err := fn(s.lib); err != nil {
		return err
	}
	s.index = library.BuildIndex(s.lib)
	if s.writeState == library.WriteBusy {
		s.edited = true
	} else {
		s.writeState = library.WriteReady
	}
	return nil
}

// Write flushes the mirrored library through the worker. It is rejected
// without sending anything unless there are unsaved changes and both paths
// are known. selected limits the output to those playlists.
func (s *LibrarySlice) Write(ctx context.Context, selected []string) error {
	s.mu.Lock()
	if s.lib == nil || s.inputPath == "" || s.outputPath == "" {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "client", "write library", "library and both paths must be known", nil)
	}
	next, err := library.TransitionWrite(s.writeState, library.WriteBusy)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	release, err := s.analysis.hold()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	output := s.outputPath
	// Encode under the lock so later edits cannot race the marshal.
	payload, err := json.Marshal(protocol.WriteLibraryRequest{
		Library:             s.lib,
		InputFilepath:       s.inputPath,
		OutputFilepath:      output,
		SelectedPlaylistIDs: selected,
	})
	if err != nil {
		s.mu.Unlock()
		release()
		return services.Wrap(services.ErrValidation, "client", "write library", "encode library", err)
	}
	s.writeState = next
	s.edited = false
	s.mu.Unlock()

	resume := s.server.suspendPings()
	defer resume()
	defer release()

	_, err = s.msg.Request(ctx, protocol.WriteLibrary, json.RawMessage(payload), s.timeouts.WriteLibrary())

	s.mu.Lock()
	defer s.mu.Unlock()
	target := library.WriteNone
	if err != nil || s.edited {
		target = library.WriteReady
	}
	s.edited = false
	if s.writeState, _ = library.TransitionWrite(s.writeState, target); err != nil {
		logging.WarnWithContext(s.logger, "library write failed", "library_write_failed",
			logging.String("path", output),
			logging.Error(err),
			logging.String(logging.FieldImpact, "edits remain unsaved"),
			logging.String(logging.FieldErrorHint, "retry the write"))
		return err
	}
	s.logger.Info("library written", logging.String("path", output))
	return nil
}

// OnFileChanged runs fn when the worker reports the library file changed on
// disk.
func (s *LibrarySlice) OnFileChanged(fn func(path string)) bridge.CancelFunc {
	return s.msg.Subscribe(protocol.LibraryFileChanged, func(env protocol.Envelope) {
		var event protocol.LibraryFileChangedEvent
		if err := env.Decode(&event); err != nil {
			s.logger.Debug("malformed library-file-changed", logging.Error(err))
			return
		}
		fn(event.Filepath)
	})
}

// IsTimeout reports whether err came from a reply that never arrived.
func IsTimeout(err error) bool {
	var timeout *bridge.TimeoutError
	return errors.As(err, &timeout) || errors.Is(err, services.ErrTimeout)
}

// PlaylistTrackIDs lists the stable IDs of a playlist's tracks in order.
func (s *LibrarySlice) PlaylistTrackIDs(playlistID string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.index.PlaylistByID[playlistID]; !ok {
		return nil, false
	}
	tracks := s.index.TracksByPlaylist[playlistID]
	ids := make([]string, 0, len(tracks))
	for _, track := range tracks {
		ids = append(ids, track.StableID())
	}
	return ids, true
}

// WriteTag asks the worker to write one tag into the audio file at location
// and mirrors the value onto the matching track when a library is loaded.
func (s *LibrarySlice) WriteTag(ctx context.Context, location, name, value, userEmail string) error {
	normalized, err := tags.Normalize(name, value)
	if err != nil {
		return err
	}
	if _, err := s.msg.Request(ctx, protocol.WriteAudioTag, protocol.WriteAudioTagRequest{
		FileLocation: location,
		TagName:      name,
		UserEmail:    userEmail,
		Value:        normalized,
	}, s.timeouts.WriteTag()); err != nil {
		logging.WarnWithContext(s.logger, "tag write failed", "tag_write_failed",
			logging.String("location", location),
			logging.String("tag", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file and library keep the previous value"))
		return err
	}
	if s.Library() == nil {
		return nil
	}
	path := location
	if strings.HasPrefix(location, "file:") {
		if path, err = library.LocationToPath(location); err != nil {
			return nil
		}
	}
	err = s.Mutate(func(lib *library.Library) error {
		track, ok := lib.TrackByLocation(path)
		if !ok {
			return services.Wrap(services.ErrNotFound, "client", "write tag", "track not in library", nil)
		}
		tags.Apply(track, name, normalized)
		return nil
	})
	if err != nil {
		s.logger.Debug("tag written to file only", logging.String("location", location), logging.Error(err))
	}
	return nil
}
