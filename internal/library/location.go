package library

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LocationToPath converts a file:// location URL into a normalized local path.
// Library files written on macOS store decomposed Unicode, so the result is
// converted to NFC.
func LocationToPath(location string) (string, error) {
	trimmed := strings.TrimSpace(location)
	if trimmed == "" {
		return "", fmt.Errorf("empty location")
	}
	if !strings.HasPrefix(trimmed, "file:") {
		return NormalizePath(trimmed), nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse location %q: %w", location, err)
	}
	path := parsed.Path
	if parsed.Host != "" && parsed.Host != "localhost" {
		path = "//" + parsed.Host + path
	}
	// file:///C:/Music/x.mp3 on Windows
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return NormalizePath(path), nil
}

// PathToLocation converts a local path into the file://localhost form the
// library format uses.
func PathToLocation(path string) string {
	clean := filepath.ToSlash(NormalizePath(path))
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	u := url.URL{Scheme: "file", Host: "localhost", Path: clean}
	return u.String()
}

// NormalizePath cleans a path and converts it to NFC.
func NormalizePath(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

// RelativeTo returns path relative to root when path lives under it.
func RelativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(NormalizePath(root), NormalizePath(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
