package audioserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/services"
)

// Converter is the conversion service the server exposes over HTTP.
type Converter interface {
	Convert(ctx context.Context, track *library.Track) (string, error)
	All() map[string]string
	Folder(ctx context.Context) (convert.Folder, error)
}

// Options configures a Server.
type Options struct {
	Bind            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	// OnFailure runs when a started server stops serving on its own.
	OnFailure func(error)
}

// Started describes a running server.
type Started struct {
	Folder         convert.Folder
	Address        string
	AlreadyRunning bool
}

// Server owns the HTTP listener and its lifecycle.
type Server struct {
	bind     string
	origins  []string
	shutdown time.Duration
	conv     Converter
	logger   *slog.Logger
	failed   func(error)

	mu       sync.Mutex
	status   Status
	root     string
	httpSrv  *http.Server
	listener net.Listener
	served   chan struct{}
}

// New returns a stopped server.
func New(conv Converter, opts Options) *Server {
	if gin.Mode() == gin.DebugMode {
		// Debug mode prints route tables to stdout, which may be the
		// worker's message channel.
		gin.SetMode(gin.ReleaseMode)
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}
	return &Server{
		bind:     opts.Bind,
		origins:  opts.AllowedOrigins,
		shutdown: shutdown,
		conv:     conv,
		logger:   logging.NewComponentLogger(opts.Logger, "audioserver"),
		failed:   opts.OnFailure,
		status:   StatusStopped,
	}
}

// Status returns the current lifecycle state.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Root returns the folder served as static content.
func (s *Server) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Address returns the bound listener address, or "" when stopped.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves root. A start while running reports the
// running instance and re-targets the root without rebinding.
func (s *Server) Start(ctx context.Context, root string) (Started, error) {
	root, err := validateRoot(root)
	if err != nil {
		return Started{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusStarted {
		if s.root != root {
			s.logger.Info("re-targeting audio root", logging.String("from", s.root), logging.String("to", root))
			s.root = root
		}
		folder, err := s.conv.Folder(ctx)
		if err != nil {
			return Started{}, err
		}
		return Started{Folder: folder, Address: s.listener.Addr().String(), AlreadyRunning: true}, nil
	}

	if s.status, err = Transition(s.status, StatusStarting); err != nil {
		return Started{}, err
	}
	s.root = root

	folder, err := s.conv.Folder(ctx)
	if err != nil {
		s.status = StatusFailed
		return Started{}, err
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		s.status = StatusFailed
		return Started{}, services.Wrap(services.ErrIO, "audioserver", "listen", s.bind, err)
	}

	httpSrv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "audio server stopped unexpectedly", "audio_server_crashed",
				logging.Error(err))
			s.mu.Lock()
			current := s.httpSrv == httpSrv
			if current {
				s.status = StatusFailed
			}
			s.mu.Unlock()
			if current && s.failed != nil {
				s.failed(services.Wrap(services.ErrIO, "audioserver", "serve", s.bind, err))
			}
		}
	}()

	s.httpSrv, s.listener, s.served = httpSrv, listener, served
	s.status = StatusStarted
	s.logger.Info("audio server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("root", root),
		logging.String("conversion_folder", folder.Path))
	return Started{Folder: folder, Address: listener.Addr().String()}, nil
}

// Stop shuts the server down gracefully. Stopping a server that is not
// running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusStarted || s.httpSrv == nil {
		status := s.status
		if status == StatusFailed {
			s.status = StatusStopped
		}
		s.mu.Unlock()
		s.logger.Debug("stop requested while not running", logging.String("status", string(status)))
		return nil
	}
	httpSrv, served := s.httpSrv, s.served
	s.httpSrv, s.listener, s.served = nil, nil, nil
	s.status = StatusStopped
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdown)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	if err != nil {
		_ = httpSrv.Close()
	}
	<-served
	s.logger.Info("audio server stopped")
	if err != nil {
		return services.Wrap(services.ErrIO, "audioserver", "shutdown", "", err)
	}
	return nil
}

// Handler returns the HTTP routes without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// SetRoot changes the static root without touching the listener.
func (s *Server) SetRoot(root string) error {
	root, err := validateRoot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
	return nil
}

func validateRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", services.Wrap(services.ErrValidation, "audioserver", "start", "audio files root folder is required", nil)
	}
	root = library.NormalizePath(root)
	info, err := os.Stat(root)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "audioserver", "start", fmt.Sprintf("root %s does not exist", root), err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "audioserver", "start", fmt.Sprintf("root %s is not a directory", root), nil)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "audioserver", "start", fmt.Sprintf("root %s is unreadable", root), err)
	}
	if len(entries) == 0 {
		return "", services.Wrap(services.ErrValidation, "audioserver", "start", fmt.Sprintf("root %s is empty", root), nil)
	}
	return root, nil
}
