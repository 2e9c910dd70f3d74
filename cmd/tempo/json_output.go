package main

import (
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"tempo/internal/library"
)

// libraryInfoJSON is the `library info --json` document.
type libraryInfoJSON struct {
	Path string       `json:"path"`
	Meta library.Meta `json:"meta"`
}

// playlistJSON flattens a playlist with its folder path and resolved track
// count. Raw playlist items are left out.
type playlistJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Parent string `json:"parent,omitempty"`
	Tracks int    `json:"tracks"`
	Folder bool   `json:"folder,omitempty"`
}

func playlistsJSON(idx library.Index, playlists []*library.Playlist) []playlistJSON {
	out := make([]playlistJSON, 0, len(playlists))
	for _, pl := range playlists {
		out = append(out, playlistJSON{
			ID:     pl.PlaylistPersistentID,
			Name:   pl.Name,
			Path:   playlistPath(idx, pl),
			Parent: pl.ParentPersistentID,
			Tracks: len(idx.TracksByPlaylist[pl.PlaylistPersistentID]),
			Folder: pl.Folder,
		})
	}
	return out
}

// trackJSON keys a track by its stable ID. BPM is null until analyzed.
type trackJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Genre    string `json:"genre,omitempty"`
	BPM      *int   `json:"bpm"`
	Rating   int    `json:"rating,omitempty"`
	Location string `json:"location,omitempty"`
}

func tracksJSON(tracks []*library.Track) []trackJSON {
	out := make([]trackJSON, 0, len(tracks))
	for _, track := range tracks {
		row := trackJSON{
			ID:       track.StableID(),
			Name:     track.Name,
			Artist:   track.Artist,
			Album:    track.Album,
			Genre:    track.Genre,
			Rating:   track.Rating,
			Location: track.Location,
		}
		if track.HasBPM() {
			bpm := track.BPM
			row.BPM = &bpm
		}
		out = append(out, row)
	}
	return out
}

// conversionJSON is one entry of the conversion cache.
type conversionJSON struct {
	TrackID string `json:"trackId"`
	Output  string `json:"output"`
}

// conversionsJSON orders the cache by track ID so output is stable.
func conversionsJSON(conversions map[string]string) []conversionJSON {
	out := make([]conversionJSON, 0, len(conversions))
	for id, path := range conversions {
		out = append(out, conversionJSON{TrackID: id, Output: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
