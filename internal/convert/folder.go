package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFile = ".tempo-folder-id"

// Folder is the conversion output directory and its identity token.
type Folder struct {
	Path string
	ID   string
}

// OpenFolder ensures path exists and returns its identity, writing a new
// token when none is present.
func OpenFolder(path string) (Folder, error) {
	if strings.TrimSpace(path) == "" {
		return Folder{}, errors.New("conversion folder: empty path")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Folder{}, fmt.Errorf("create conversion folder: %w", err)
	}
	marker := filepath.Join(path, identityFile)
	data, err := os.ReadFile(marker)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return Folder{Path: path, ID: id}, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Folder{}, fmt.Errorf("read folder identity: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(marker, []byte(id+"\n"), 0o644); err != nil {
		return Folder{}, fmt.Errorf("write folder identity: %w", err)
	}
	return Folder{Path: path, ID: id}, nil
}

// Intact reports whether the folder and its identity token are still on disk.
func (f Folder) Intact() bool {
	data, err := os.ReadFile(filepath.Join(f.Path, identityFile))
	return err == nil && strings.TrimSpace(string(data)) == f.ID
}

// TrackDir returns the per-track output directory.
func (f Folder) TrackDir(trackID string) string {
	return filepath.Join(f.Path, sanitize(trackID))
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
