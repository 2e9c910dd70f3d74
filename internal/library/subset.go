package library

import "strconv"

// Subset returns a copy of lib containing only the selected playlists, their
// folder ancestors, and the tracks they reference. An empty selection returns
// lib unchanged.
func (l *Library) Subset(playlistIDs []string) *Library {
	if l == nil || len(playlistIDs) == 0 {
		return l
	}
	idx := BuildIndex(l)

	keep := map[string]struct{}{}
	for _, id := range playlistIDs {
		if _, ok := idx.PlaylistByID[id]; !ok {
			continue
		}
		keep[id] = struct{}{}
		for _, parent := range idx.Ancestors(id) {
			keep[parent.PlaylistPersistentID] = struct{}{}
		}
	}

	out := *l
	out.Playlists = make([]*Playlist, 0, len(keep))
	out.Tracks = map[string]*Track{}
	for _, pl := range l.Playlists {
		if _, ok := keep[pl.PlaylistPersistentID]; !ok {
			continue
		}
		out.Playlists = append(out.Playlists, pl)
		if pl.Folder {
			continue
		}
		for _, item := range pl.Items {
			key := strconv.Itoa(item.TrackID)
			if track, ok := l.Tracks[key]; ok {
				out.Tracks[key] = track
			}
		}
	}
	return &out
}
