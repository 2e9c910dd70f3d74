package library

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"howett.net/plist"

	"tempo/internal/services"
)

// Codec parses and serializes library files.
type Codec interface {
	Parse(r io.Reader) (*Library, error)
	Serialize(w io.Writer, lib *Library) error
}

// PlistCodec reads and writes the XML property list library format.
type PlistCodec struct{}

// Parse decodes a library document.
func (PlistCodec) Parse(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	var lib Library
	if _, err := plist.Unmarshal(data, &lib); err != nil {
		return nil, services.Wrap(services.ErrValidation, "library", "parse", "malformed library document", err)
	}
	if lib.Tracks == nil {
		lib.Tracks = map[string]*Track{}
	}
	return &lib, nil
}

// Serialize encodes a library document as indented XML.
func (PlistCodec) Serialize(w io.Writer, lib *Library) error {
	if lib == nil {
		return services.Wrap(services.ErrValidation, "library", "serialize", "nil library", nil)
	}
	enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
	enc.Indent("\t")
	if err := enc.Encode(lib); err != nil {
		return fmt.Errorf("encode library: %w", err)
	}
	return nil
}

// ReadFile parses the library stored at path and reports file metadata.
func ReadFile(codec Codec, path string) (*Library, Meta, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, services.Wrap(services.ErrNotFound, "library", "open", path, err)
		}
		return nil, Meta{}, services.Wrap(services.ErrIO, "library", "open", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, Meta{}, services.Wrap(services.ErrIO, "library", "stat", path, err)
	}
	lib, err := codec.Parse(file)
	if err != nil {
		return nil, Meta{}, err
	}
	meta := lib.Meta()
	meta.FileSize = info.Size()
	meta.ModifiedAt = info.ModTime()
	meta.LoadedAt = time.Now()
	return lib, meta, nil
}

// WriteFile serializes lib to path through a temp file and rename so readers
// never observe a partially written library.
func WriteFile(codec Codec, path string, lib *Library) error {
	var buf bytes.Buffer
	if err := codec.Serialize(&buf, lib); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tempo-library-*.xml")
	if err != nil {
		return services.Wrap(services.ErrIO, "library", "write", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return services.Wrap(services.ErrIO, "library", "write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return services.Wrap(services.ErrIO, "library", "write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return services.Wrap(services.ErrIO, "library", "rename", path, err)
	}
	return nil
}
