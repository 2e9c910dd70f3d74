package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFLACStub writes a FLAC file with a STREAMINFO block followed by the
// start of one audio frame, enough for tag readers and writers to parse.
func WriteFLACStub(t testing.TB, path string) {
	t.Helper()

	streamInfo := make([]byte, 34)
	binary.BigEndian.PutUint16(streamInfo[0:2], 4096)
	binary.BigEndian.PutUint16(streamInfo[2:4], 4096)
	// 44100 Hz, 2 channels, 16 bits per sample.
	streamInfo[10] = 0x0A
	streamInfo[11] = 0xC4
	streamInfo[12] = 0x42
	streamInfo[13] = 0xF0

	data := []byte("fLaC")
	data = append(data, 0x80, 0x00, 0x00, byte(len(streamInfo)))
	data = append(data, streamInfo...)
	// Frame header: sync code, fixed blocking, 4096 samples, 44.1 kHz stereo.
	data = append(data, 0xFF, 0xF8, 0xC9, 0x18, 0x00, 0x00, 0x00, 0x00)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteMP3Stub writes a file with a single silent MPEG frame header and no tags.
func WriteMP3Stub(t testing.TB, path string) {
	t.Helper()

	frame := make([]byte, 417)
	frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x64
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
