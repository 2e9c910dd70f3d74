package testsupport

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"tempo/internal/library"
)

// SampleLibrary builds a small library whose tracks live under root: one
// MP3, one FLAC, and one AIFF that needs conversion. Playlist "PL-SET"
// holds all three.
func SampleLibrary(root string) *library.Library {
	tracks := map[string]*library.Track{}
	add := func(id int, name, file string, bpm int) {
		tracks[strconv.Itoa(id)] = &library.Track{
			TrackID:      id,
			Name:         name,
			Artist:       "Test Artist",
			PersistentID: "PID" + strconv.Itoa(id),
			BPM:          bpm,
			TrackType:    "File",
			Location:     library.PathToLocation(filepath.Join(root, file)),
		}
	}
	add(1, "One", "one.mp3", 0)
	add(2, "Two", "two.flac", 128)
	add(3, "Three", "three.aiff", 0)

	return &library.Library{
		MajorVersion:        1,
		MinorVersion:        1,
		Date:                time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LibraryPersistentID: "LIBTEST",
		Tracks:              tracks,
		Playlists: []*library.Playlist{
			{Name: "Library", Master: true, PlaylistID: 1, PlaylistPersistentID: "PL-ALL", AllItems: true,
				Items: []library.PlaylistItem{{TrackID: 1}, {TrackID: 2}, {TrackID: 3}}},
			{Name: "Set", PlaylistID: 2, PlaylistPersistentID: "PL-SET", AllItems: true,
				Items: []library.PlaylistItem{{TrackID: 1}, {TrackID: 2}, {TrackID: 3}}},
		},
	}
}

// WriteSampleLibrary writes SampleLibrary(root) to path.
func WriteSampleLibrary(t testing.TB, path, root string) *library.Library {
	t.Helper()
	lib := SampleLibrary(root)
	if err := library.WriteFile(library.PlistCodec{}, path, lib); err != nil {
		t.Fatalf("write sample library: %v", err)
	}
	return lib
}
