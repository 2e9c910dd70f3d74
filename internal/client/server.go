package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"tempo/internal/audioserver"
	"tempo/internal/bridge"
	"tempo/internal/config"
	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
)

// ServerInfo is a snapshot of the server slice.
type ServerInfo struct {
	Status      audioserver.Status
	Address     string
	Root        string
	Folder      string
	FolderID    string
	Conversions int
}

// ServerSlice tracks the worker's audio server, pings it while it runs, and
// mirrors the conversion cache.
type ServerSlice struct {
	msg      Messenger
	timeouts config.Timeouts
	http     *http.Client
	logger   *slog.Logger

	mu        sync.Mutex
	status    audioserver.Status
	address   string
	root      string
	folder    string
	folderID  string
	mirror    map[string]string
	observers map[int]func(audioserver.Status)
	onError   map[int]func(error)
	nextObs   int
	suspended int
	pingStop  context.CancelFunc
	pingGen   int
	crashStop bridge.CancelFunc
}

func newServerSlice(msg Messenger, timeouts config.Timeouts, client *http.Client, logger *slog.Logger) *ServerSlice {
	return &ServerSlice{
		msg:       msg,
		timeouts:  timeouts,
		http:      client,
		logger:    logging.NewComponentLogger(logger, "server-slice"),
		status:    audioserver.StatusStopped,
		mirror:    map[string]string{},
		observers: map[int]func(audioserver.Status){},
		onError:   map[int]func(error){},
	}
}

// Status returns the current server status.
func (s *ServerSlice) Status() audioserver.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info returns a snapshot of the server state.
func (s *ServerSlice) Info() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerInfo{
		Status:      s.status,
		Address:     s.address,
		Root:        s.root,
		Folder:      s.folder,
		FolderID:    s.folderID,
		Conversions: len(s.mirror),
	}
}

// OnStatus registers fn for every status change.
func (s *ServerSlice) OnStatus(fn func(audioserver.Status)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// OnError registers fn for start failures and server crashes.
func (s *ServerSlice) OnError(fn func(error)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.onError[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.onError, id)
		s.mu.Unlock()
	}
}

// transition moves to `to`, optionally only when currently in one of from.
func (s *ServerSlice) transition(to audioserver.Status, from ...audioserver.Status) bool {
	s.mu.Lock()
	if len(from) > 0 && !containsStatus(from, s.status) {
		s.mu.Unlock()
		return false
	}
	next, err := audioserver.Transition(s.status, to)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("status change rejected", logging.Error(err))
		return false
	}
	s.status = next
	observers := make([]func(audioserver.Status), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
	return true
}

func containsStatus(list []audioserver.Status, status audioserver.Status) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

// Start asks the worker to serve root. A start while already started asks
// the worker again, which reports the running instance.
func (s *ServerSlice) Start(ctx context.Context, root string) error {
	if s.Status() == audioserver.StatusStarted {
		reply, err := s.requestStart(ctx, root)
		if err != nil {
			logging.WarnWithContext(s.logger, "server start on running server failed", "server_start_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "server keeps its previous root"))
			return err
		}
		s.applyStarted(reply, root)
		return nil
	}
	if !s.transition(audioserver.StatusStarting) {
		return services.Wrap(services.ErrIllegalTransition, "client", "server start",
			fmt.Sprintf("cannot start while %s", s.Status()), nil)
	}
	return s.completeStart(ctx, root)
}

func (s *ServerSlice) completeStart(ctx context.Context, root string) error {
	reply, err := s.requestStart(ctx, root)
	if err != nil {
		s.fail(err)
		return err
	}
	s.applyStarted(reply, root)
	s.transition(audioserver.StatusStarted, audioserver.StatusStarting)
	s.watchCrash()
	if err := s.RefreshMirror(ctx); err != nil {
		s.logger.Debug("conversion mirror refresh failed", logging.Error(err))
	}
	s.startPinging()
	return nil
}

func (s *ServerSlice) requestStart(ctx context.Context, root string) (protocol.ServerStartedReply, error) {
	var reply protocol.ServerStartedReply
	env, err := s.msg.Request(ctx, protocol.ServerStart,
		protocol.ServerStartRequest{AudioFilesRootFolder: root}, s.timeouts.ServerStart())
	if err != nil {
		return reply, err
	}
	if err := env.Decode(&reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func (s *ServerSlice) applyStarted(reply protocol.ServerStartedReply, root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (s.folderID != "" && s.folderID != reply.ConversionFolderID) || (s.folder != "" && s.folder != reply.TempConversionFolder) {
		s.logger.Info("conversion folder changed; discarding mirror",
			logging.String("previous_id", s.folderID),
			logging.String("folder_id", reply.ConversionFolderID))
		s.mirror = map[string]string{}
	}
	s.address = strings.TrimRight(reply.Address, "/")
	s.root = root
	s.folder = reply.TempConversionFolder
	s.folderID = reply.ConversionFolderID
}

func (s *ServerSlice) fail(err error) {
	s.transition(audioserver.StatusFailed, audioserver.StatusStarting)
	logging.WarnWithContext(s.logger, "server start failed", "server_start_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "audio playback and analysis unavailable"),
		logging.String(logging.FieldErrorHint, "check the audio root folder and restart the server"))
	s.notifyError(err)
}

// watchCrash arms a one-shot handler for the worker's unsolicited
// server-error push. Each delivery re-arms it while the server runs.
func (s *ServerSlice) watchCrash() {
	cancel := s.msg.HandleOnce(protocol.ServerError, s.serverEvent)
	s.mu.Lock()
	previous := s.crashStop
	s.crashStop = cancel
	s.mu.Unlock()
	if previous != nil {
		previous()
	}
}

func (s *ServerSlice) unwatchCrash() {
	s.mu.Lock()
	cancel := s.crashStop
	s.crashStop = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *ServerSlice) serverEvent(env protocol.Envelope) {
	var reply protocol.ServerErrorReply
	if env.CorrelationID != "" || env.Decode(&reply) != nil || reply.Channel != protocol.ServerStart {
		// A failed request's reply, not a crash.
		if s.Status() == audioserver.StatusStarted {
			s.watchCrash()
		}
		return
	}
	s.mu.Lock()
	s.crashStop = nil
	s.mu.Unlock()
	s.stopPinging()

	err := &bridge.RemoteError{Channel: reply.Channel, Message: reply.Error, Kind: reply.Kind}
	if !s.transition(audioserver.StatusFailed, audioserver.StatusStarted) {
		return
	}
	logging.ErrorWithContext(s.logger, "audio server crashed", "server_crashed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "audio playback and analysis unavailable"),
		logging.String(logging.FieldErrorHint, "restart the server"))
	s.notifyError(err)
}

func (s *ServerSlice) notifyError(err error) {
	s.mu.Lock()
	handlers := make([]func(error), 0, len(s.onError))
	for _, fn := range s.onError {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

// Stop asks the worker to stop the server and waits for its acknowledgment.
func (s *ServerSlice) Stop(ctx context.Context) error {
	s.stopPinging()
	s.unwatchCrash()
	if _, err := s.msg.Request(ctx, protocol.ServerStop, protocol.Empty{}, s.timeouts.ServerStart()); err != nil {
		logging.WarnWithContext(s.logger, "server stop failed", "server_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "server state unknown until next ping"))
		return err
	}
	s.transition(audioserver.StatusStopped, audioserver.StatusStarted, audioserver.StatusFailed)
	return nil
}

// Restart stops the running server, waits until the worker is ready for a
// new listener, and starts it again on root.
func (s *ServerSlice) Restart(ctx context.Context, root string) error {
	if !s.transition(audioserver.StatusStarting, audioserver.StatusStarted) {
		return s.Start(ctx, root)
	}
	s.stopPinging()
	s.unwatchCrash()
	if _, err := s.msg.Request(ctx, protocol.ServerStop, protocol.Empty{}, s.timeouts.ServerStart()); err != nil {
		s.fail(err)
		return err
	}
	return s.completeStart(ctx, root)
}

// Ping checks liveness. A ping that times out while started moves the status
// to stopped; any other failure moves it to failed.
func (s *ServerSlice) Ping(ctx context.Context) error {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()
	if address == "" {
		return services.Wrap(services.ErrValidation, "client", "ping", "server address unknown", nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.timeouts.Ping())
	defer cancel()
	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, address+"/ping", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "client", "ping", address, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(pingCtx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
			if s.transition(audioserver.StatusStopped, audioserver.StatusStarted) {
				logging.WarnWithContext(s.logger, "ping timed out; server considered lost", "server_ping_timeout",
					logging.Duration("timeout", s.timeouts.Ping()),
					logging.String(logging.FieldImpact, "audio playback unavailable until restart"))
			}
			return services.Wrap(services.ErrTimeout, "client", "ping", address, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pingFailed(err)
		return services.Wrap(services.ErrIO, "client", "ping", address, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		err := statusError("ping", resp.StatusCode, body)
		s.pingFailed(err)
		return err
	}
	return nil
}

func (s *ServerSlice) pingFailed(err error) {
	if s.transition(audioserver.StatusFailed, audioserver.StatusStarted) {
		logging.WarnWithContext(s.logger, "ping failed", "server_ping_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "audio playback unavailable until restart"))
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// suspendPings pauses liveness checks until the returned func runs.
func (s *ServerSlice) suspendPings() func() {
	s.mu.Lock()
	s.suspended++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.suspended--
			s.mu.Unlock()
		})
	}
}

// PingsSuspended reports whether a library write has paused pinging.
func (s *ServerSlice) PingsSuspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended > 0
}

func (s *ServerSlice) startPinging() {
	interval := s.timeouts.PingInterval()
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.pingStop != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pingStop = cancel
	s.pingGen++
	gen := s.pingGen
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer s.clearPingStop(gen, cancel)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.mu.Lock()
			status, suspended := s.status, s.suspended
			s.mu.Unlock()
			if status != audioserver.StatusStarted {
				return
			}
			if suspended > 0 {
				continue
			}
			_ = s.Ping(ctx)
		}
	}()
}

func (s *ServerSlice) clearPingStop(gen int, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	// A newer loop may already own pingStop.
	if s.pingGen == gen {
		s.pingStop = nil
	}
}

func (s *ServerSlice) stopPinging() {
	s.mu.Lock()
	cancel := s.pingStop
	s.pingStop = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RefreshMirror replaces the conversion mirror with the worker's cache.
func (s *ServerSlice) RefreshMirror(ctx context.Context) error {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()
	if address == "" {
		return services.Wrap(services.ErrValidation, "client", "refresh conversions", "server address unknown", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.ServerStart())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+"/all-converted", nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrIO, "client", "refresh conversions", address, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("all-converted", resp.StatusCode, body)
	}
	var all map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return services.Wrap(services.ErrValidation, "client", "refresh conversions", "malformed body", err)
	}
	s.mu.Lock()
	s.mirror = all
	s.mu.Unlock()
	return nil
}

// Converted returns the mirrored output path for trackID.
func (s *ServerSlice) Converted(trackID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.mirror[trackID]
	return out, ok
}

// Conversions returns a copy of the mirrored conversion cache.
func (s *ServerSlice) Conversions() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.mirror))
	for id, path := range s.mirror {
		out[id] = path
	}
	return out
}

// Convert asks the server for an MP3 copy of track.
func (s *ServerSlice) Convert(ctx context.Context, track library.Track) (string, error) {
	if out, ok := s.Converted(track.StableID()); ok {
		return out, nil
	}
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()
	if address == "" {
		return "", services.Wrap(services.ErrValidation, "client", "convert", "server not started", nil)
	}

	body, err := json.Marshal(audioserver.ConvertRequest{TrackDefinition: &track})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Convert())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address+"/convert-to-mp3", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "client", "convert", track.StableID(), err)
		}
		return "", services.Wrap(services.ErrIO, "client", "convert", track.StableID(), err)
	}
	defer resp.Body.Close()
	text, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", statusError("convert-to-mp3", resp.StatusCode, text)
	}
	out := strings.TrimSpace(string(text))
	s.mu.Lock()
	s.mirror[track.StableID()] = out
	s.mu.Unlock()
	return out, nil
}

// PlayableURL returns a URL the decoder can read for track, converting it
// first when its format is not directly playable.
func (s *ServerSlice) PlayableURL(ctx context.Context, track library.Track) (string, error) {
	info := s.Info()
	if info.Status != audioserver.StatusStarted {
		return "", services.Wrap(services.ErrValidation, "client", "playable url", "audio server is "+string(info.Status), nil)
	}
	path, err := library.LocationToPath(track.Location)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "client", "playable url", track.Location, err)
	}
	if !convert.HasUnplayableExtension(path) {
		return audioserver.TrackURL(info.Address, info.Root, track.Location)
	}
	out, err := s.Convert(ctx, track)
	if err != nil {
		return "", err
	}
	return audioserver.ConvertedURL(info.Address, info.Folder, out)
}

func statusError(route string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var marker error
	switch code {
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusNotImplemented:
		marker = services.ErrUnsupported
	case http.StatusBadRequest, http.StatusForbidden:
		marker = services.ErrValidation
	case http.StatusGatewayTimeout:
		marker = services.ErrTimeout
	default:
		marker = services.ErrIO
	}
	return services.Wrap(marker, "client", route, fmt.Sprintf("status %d: %s", code, msg), nil)
}
