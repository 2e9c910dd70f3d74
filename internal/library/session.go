package library

import (
	"sync"

	"tempo/internal/services"
)

// Session holds one loaded library, the paths it is read from and written to,
// and its write state. It is safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	lib        *Library
	index      Index
	meta       Meta
	inputPath  string
	outputPath string
	state      WriteState

	// edited records a Mutate that landed after BeginWrite took its copy.
	edited bool
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{state: WriteNone}
}

// Load replaces the session contents. The write state resets to none.
func (s *Session) Load(lib *Library, meta Meta, inputPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib = lib
	s.index = BuildIndex(lib)
	s.meta = meta
	s.inputPath = inputPath
	if s.outputPath == "" {
		s.outputPath = inputPath
	}
	s.state = WriteNone
	s.edited = false
}

// Unload clears the session.
func (s *Session) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib = nil
	s.index = Index{}
	s.meta = Meta{}
	s.inputPath = ""
	s.outputPath = ""
	s.state = WriteNone
	s.edited = false
}

// Library returns a copy of the loaded library, or nil. Callers may read or
// encode it without holding the session.
func (s *Session) Library() *Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lib.Clone()
}

// Loaded reports whether a library is loaded.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lib != nil
}

// Index returns the lookups derived from the loaded library.
func (s *Session) Index() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Meta returns the summary recorded at load time.
func (s *Session) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Paths returns the input and output library paths.
func (s *Session) Paths() (input, output string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputPath, s.outputPath
}

// SetOutputPath records where the next write should land.
func (s *Session) SetOutputPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputPath = path
}

// WriteState returns the current write state.
func (s *Session) WriteState() WriteState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Mutate applies fn to the loaded library and marks it ready for writing.
// While a write is in flight the state stays busy and the edit is remembered
// so the write does not count it as saved.
func (s *Session) Mutate(fn func(*Library) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lib == nil {
		return services.Wrap(services.ErrValidation, "library", "mutate", "no library loaded", nil)
	}
	if err := fn(s.lib); err != nil {
		return err
	}
	s.index = BuildIndex(s.lib)
	if s.state == WriteBusy {
		s.edited = true
	} else {
		s.state = WriteReady
	}
	return nil
}

// BeginWrite moves ready -> busy and returns a copy of the library to write.
func (s *Session) BeginWrite() (*Library, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lib == nil || s.inputPath == "" || s.outputPath == "" {
		return nil, "", "", services.Wrap(services.ErrValidation, "library", "write", "library and both paths must be known", nil)
	}
	next, err := TransitionWrite(s.state, WriteBusy)
	if err != nil {
		return nil, "", "", err
	}
	s.state = next
	s.edited = false
	return s.lib.Clone(), s.inputPath, s.outputPath, nil
}

// FinishWrite ends an in-flight write: none on success, ready on failure or
// when edits arrived during the write.
func (s *Session) FinishWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := WriteNone
	if err != nil || s.edited {
		next = WriteReady
	}
	s.edited = false
	if state, terr := TransitionWrite(s.state, next); terr == nil {
		s.state = state
	}
}
