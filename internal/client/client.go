package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/bridge"
	"tempo/internal/config"
	"tempo/internal/logging"
	"tempo/internal/protocol"
)

// Messenger is the part of the bridge the slices use.
type Messenger interface {
	Request(ctx context.Context, channel protocol.Channel, payload any, timeout time.Duration) (protocol.Envelope, error)
	Subscribe(channel protocol.Channel, fn func(protocol.Envelope)) bridge.CancelFunc
	HandleOnce(channel protocol.Channel, fn func(protocol.Envelope)) bridge.CancelFunc
}

// Options supplies collaborators. Zero fields get production defaults.
type Options struct {
	Decoder    analysis.Decoder
	Detector   analysis.Detector
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserEmail  string
}

// Client groups the slices that make up the UI process.
type Client struct {
	Library  *LibrarySlice
	Server   *ServerSlice
	Analysis *AnalysisSlice
}

// New wires the slices together over msg.
func New(msg Messenger, cfg *config.Config, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Decoder == nil {
		opts.Decoder = analysis.FFmpegDecoder{
			Binary:     cfg.Encoder.FFmpegBinary,
			SampleRate: cfg.Analysis.SampleRate,
		}
	}
	if opts.Detector == nil {
		opts.Detector = analysis.FluxDetector{MinBPM: cfg.Analysis.MinBPM, MaxBPM: cfg.Analysis.MaxBPM}
	}

	server := newServerSlice(msg, cfg.Timeouts, opts.HTTPClient, logger)
	an := newAnalysisSlice(msg, cfg.Timeouts, opts.Decoder, opts.Detector, opts.UserEmail, logger)
	lib := newLibrarySlice(msg, cfg.Timeouts, logger, an, server)
	an.library = lib
	an.server = server
	return &Client{Library: lib, Server: server, Analysis: an}
}

// Close stops background loops.
func (c *Client) Close() {
	c.Server.stopPinging()
}
