package services_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"tempo/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "encode", "ffmpeg failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "encode", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToIOMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		nil:                           http.StatusOK,
		services.ErrNotFound:          http.StatusNotFound,
		services.ErrUnsupported:       http.StatusNotImplemented,
		services.ErrValidation:        http.StatusBadRequest,
		services.ErrTimeout:           http.StatusGatewayTimeout,
		services.ErrIllegalTransition: http.StatusConflict,
		errors.New("disk on fire"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		wrapped := err
		if err != nil {
			wrapped = services.Wrap(err, "audioserver", "convert", "", nil)
		}
		if got := services.HTTPStatus(wrapped); got != want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestKind(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrTimeout, "bridge", "wait", "", nil)); got != "timeout" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
