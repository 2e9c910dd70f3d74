package tags

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tempo/internal/services"
)

// Tag names accepted by WriteTag.
const (
	TagBPM     = "bpm"
	TagRating  = "rating"
	TagComment = "comment"
	TagGenre   = "genre"
)

// Writer writes one tag into an audio file.
type Writer interface {
	WriteTag(ctx context.Context, path, tagName, value, userEmail string) error
}

// FileWriter writes tags into MP3 and FLAC files on local disk.
type FileWriter struct{}

// WriteTag validates the request and writes value under tagName.
func (FileWriter) WriteTag(ctx context.Context, path, tagName, value, userEmail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.ToLower(strings.TrimSpace(tagName))
	normalized, err := Normalize(name, value)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "tags", "write", path, err)
		}
		return services.Wrap(services.ErrIO, "tags", "write", path, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "tags", "write", "path is a directory", nil)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return writeID3(path, name, normalized, userEmail)
	case ".flac":
		return writeFLAC(path, name, normalized)
	default:
		return services.Wrap(services.ErrUnsupported, "tags", "write", fmt.Sprintf("no tag writer for %s", filepath.Ext(path)), nil)
	}
}

// Normalize validates value for tagName and returns its canonical form. BPM
// values are rounded to the nearest integer.
func Normalize(name, value string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case TagBPM:
		bpm, err := strconv.ParseFloat(value, 64)
		if err != nil || bpm <= 0 {
			return "", services.Wrap(services.ErrValidation, "tags", "write", fmt.Sprintf("invalid bpm %q", value), nil)
		}
		return strconv.Itoa(int(bpm + 0.5)), nil
	case TagRating:
		rating, err := strconv.Atoi(value)
		if err != nil || rating < 0 || rating > 100 {
			return "", services.Wrap(services.ErrValidation, "tags", "write", fmt.Sprintf("rating must be 0-100, got %q", value), nil)
		}
		return strconv.Itoa(rating), nil
	case TagComment, TagGenre:
		return value, nil
	default:
		return "", services.Wrap(services.ErrUnsupported, "tags", "write", fmt.Sprintf("unknown tag %q", name), nil)
	}
}

// popularimeterRating maps a 0-100 library rating onto the 0-255 POPM scale.
func popularimeterRating(rating int) uint8 {
	return uint8((rating*255 + 50) / 100)
}
