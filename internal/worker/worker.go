package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tempo/internal/audioserver"
	"tempo/internal/bridge"
	"tempo/internal/config"
	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/tags"
	"tempo/internal/transport"
)

// ErrAlreadyRunning means another worker holds the state directory lock.
var ErrAlreadyRunning = errors.New("another tempo worker is already running")

const watchDebounce = 500 * time.Millisecond

// Deps overrides collaborators. Zero fields get the production implementation.
type Deps struct {
	Codec   library.Codec
	Tags    tags.Writer
	Encoder convert.Encoder
	Prober  convert.Prober
}

// Worker owns the library session, converter, and audio server for one
// process.
type Worker struct {
	cfg     *config.Config
	logger  *slog.Logger
	lock    *flock.Flock
	session *library.Session
	codec   library.Codec
	tags    tags.Writer
	conv    *convert.Converter
	server  *audioserver.Server
	watcher *Watcher

	writing atomic.Bool
	bridge  atomic.Pointer[bridge.Bridge]
}

// New acquires the worker lock and builds the service objects.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker requires configuration")
	}
	logger = logging.NewComponentLogger(logger, "worker")

	if err := os.MkdirAll(filepath.Dir(cfg.LockPath()), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	if deps.Codec == nil {
		deps.Codec = library.PlistCodec{}
	}
	if deps.Tags == nil {
		deps.Tags = tags.FileWriter{}
	}
	if deps.Encoder == nil {
		deps.Encoder = convert.FFmpeg{
			Binary:     cfg.Encoder.FFmpegBinary,
			Bitrate:    cfg.Encoder.Bitrate,
			SampleRate: cfg.Encoder.SampleRate,
		}
	}
	if deps.Prober == nil {
		deps.Prober = convert.FFprobe{Binary: cfg.Encoder.FFprobeBinary}
	}

	conv, err := convert.New(ctx, cfg.Paths.ConversionDir, deps.Encoder, convert.Options{
		CodecPreferences: cfg.Encoder.CodecPreferences,
		MinFreeBytes:     int64(cfg.Encoder.MinFreeMiB) << 20,
		Prober:           deps.Prober,
		Logger:           logger,
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	w := &Worker{
		cfg:     cfg,
		logger:  logger,
		lock:    lock,
		session: library.NewSession(),
		codec:   deps.Codec,
		tags:    deps.Tags,
		conv:    conv,
	}
	w.server = audioserver.New(conv, audioserver.Options{
		Bind:           cfg.Server.Bind,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		OnFailure:      w.serverFailed,
	})
	watcher, err := NewWatcher(watchDebounce, logger, w.libraryChanged)
	if err != nil {
		logging.WarnWithContext(logger, "library file watching unavailable", "watcher_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "external edits to the library file are not reported"))
	}
	w.watcher = watcher
	return w, nil
}

// Session exposes the library session.
func (w *Worker) Session() *library.Session { return w.session }

// Server exposes the audio file server.
func (w *Worker) Server() *audioserver.Server { return w.server }

// Dispatcher builds the routing table for client requests.
func (w *Worker) Dispatcher() *Dispatcher {
	d := NewDispatcher(w.logger)
	d.Handle(protocol.LoadLibrary, w.handleLoadLibrary)
	d.Handle(protocol.WriteLibrary, w.handleWriteLibrary)
	d.Handle(protocol.WriteAudioTag, w.handleWriteAudioTag)
	d.Handle(protocol.ServerStart, w.handleServerStart)
	d.Handle(protocol.ServerStop, w.handleServerStop)
	return d
}

// Serve answers requests arriving on conn until ctx ends or the peer hangs up.
func (w *Worker) Serve(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bridge.New(conn, w.logger)
	w.bridge.Store(b)
	defer w.bridge.CompareAndSwap(b, nil)

	d := w.Dispatcher()
	detach := d.Attach(ctx, b)
	defer detach()

	if w.watcher != nil {
		go w.watcher.Run(ctx)
	}

	w.logger.Info("worker serving requests")
	err := b.Run(ctx)
	cancel()
	d.Wait()
	w.logger.Info("worker connection closed")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeListener serves UI connections from l one at a time.
func (w *Worker) ServeListener(ctx context.Context, l *transport.Listener) error {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := w.Serve(ctx, conn); err != nil {
			w.logger.Warn("ui connection ended with error", logging.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close stops the audio server and releases resources and the lock.
func (w *Worker) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := []error{w.server.Stop(ctx)}
	if w.watcher != nil {
		errs = append(errs, w.watcher.Close())
	}
	errs = append(errs, w.conv.Close(), w.lock.Unlock())
	return errors.Join(errs...)
}

// serverFailed tells the UI that a running audio server died. The push is
// uncorrelated so it does not resolve any pending request.
func (w *Worker) serverFailed(err error) {
	b := w.bridge.Load()
	if b == nil {
		return
	}
	reply := protocol.ServerErrorReply{
		Error:   err.Error(),
		Kind:    services.Kind(err),
		Channel: protocol.ServerStart,
	}
	if err := b.Send(protocol.ServerError, reply); err != nil {
		w.logger.Debug("server crash not reported", logging.Error(err))
	}
}

func (w *Worker) libraryChanged(path string) {
	b := w.bridge.Load()
	if b == nil {
		return
	}
	w.logger.Info("library file changed on disk", logging.String("path", path))
	if err := b.Send(protocol.LibraryFileChanged, protocol.LibraryFileChangedEvent{Filepath: path}); err != nil {
		w.logger.Debug("library-file-changed not sent", logging.Error(err))
	}
}
