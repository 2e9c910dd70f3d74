package logging

import (
	"context"
	"log/slog"

	"tempo/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. "server_start_failed").
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldChannel is the message channel a log line relates to.
	FieldChannel = "channel"
	// FieldCorrelationID is the request/response pairing identifier.
	FieldCorrelationID = "correlation_id"
	// FieldTrackID identifies a library track.
	FieldTrackID = "track_id"
	// FieldPlaylistID identifies a library playlist.
	FieldPlaylistID = "playlist_id"
)

// ContextFields returns the request scope carried by ctx as attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	scope := services.ScopeFrom(ctx)
	var fields []slog.Attr
	if scope.Channel != "" {
		fields = append(fields, Channel(scope.Channel))
	}
	if scope.RequestID != "" {
		fields = append(fields, slog.String(FieldCorrelationID, scope.RequestID))
	}
	if scope.TrackID != "" {
		fields = append(fields, TrackID(scope.TrackID))
	}
	return fields
}

// WithContext returns logger tagged with the request scope carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
