package services

import "context"

// Scope identifies the request a piece of work belongs to. Empty fields are
// unknown.
type Scope struct {
	Channel   string
	RequestID string
	TrackID   string
}

type scopeKey struct{}

// WithScope returns ctx carrying s merged over any scope already present.
// Empty fields in s leave the existing values in place.
func WithScope(ctx context.Context, s Scope) context.Context {
	current := ScopeFrom(ctx)
	merged := current
	if s.Channel != "" {
		merged.Channel = s.Channel
	}
	if s.RequestID != "" {
		merged.RequestID = s.RequestID
	}
	if s.TrackID != "" {
		merged.TrackID = s.TrackID
	}
	if merged == current {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, merged)
}

// ScopeFrom returns the scope attached to ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}
