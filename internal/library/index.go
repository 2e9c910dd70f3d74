package library

import "strconv"

// Index holds lookups derived from a library.
type Index struct {
	PlaylistByID     map[string]*Playlist
	TracksByPlaylist map[string][]*Track
	Children         map[string][]*Playlist
}

// BuildIndex derives playlist and track lookups. Playlist items that point at
// missing tracks are skipped.
func BuildIndex(lib *Library) Index {
	idx := Index{
		PlaylistByID:     map[string]*Playlist{},
		TracksByPlaylist: map[string][]*Track{},
		Children:         map[string][]*Playlist{},
	}
	if lib == nil {
		return idx
	}
	for _, pl := range lib.Playlists {
		id := pl.PlaylistPersistentID
		idx.PlaylistByID[id] = pl
		if pl.ParentPersistentID != "" {
			idx.Children[pl.ParentPersistentID] = append(idx.Children[pl.ParentPersistentID], pl)
		}
		tracks := make([]*Track, 0, len(pl.Items))
		for _, item := range pl.Items {
			if track, ok := lib.Tracks[strconv.Itoa(item.TrackID)]; ok {
				tracks = append(tracks, track)
			}
		}
		idx.TracksByPlaylist[id] = tracks
	}
	return idx
}

// Ancestors returns the folder chain above a playlist, nearest first.
func (idx Index) Ancestors(id string) []*Playlist {
	var chain []*Playlist
	seen := map[string]struct{}{}
	current, ok := idx.PlaylistByID[id]
	for ok && current.ParentPersistentID != "" {
		if _, loop := seen[current.ParentPersistentID]; loop {
			break
		}
		seen[current.ParentPersistentID] = struct{}{}
		current, ok = idx.PlaylistByID[current.ParentPersistentID]
		if ok {
			chain = append(chain, current)
		}
	}
	return chain
}
