package library

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldKey builds a fresh Caser per call; Casers carry state and must not be shared.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Search returns tracks whose name, artist, album, or genre contains query,
// ignoring case and Unicode normalization. Results are ordered by artist then name.
func (l *Library) Search(query string) []*Track {
	if l == nil {
		return nil
	}
	needle := foldKey(strings.TrimSpace(query))
	var out []*Track
	for _, track := range l.Tracks {
		if needle == "" {
			out = append(out, track)
			continue
		}
		for _, field := range []string{track.Name, track.Artist, track.Album, track.Genre} {
			if strings.Contains(foldKey(field), needle) {
				out = append(out, track)
				break
			}
		}
	}
	SortTracks(out)
	return out
}

// SortTracks orders tracks by artist, then name, then numeric ID.
func SortTracks(tracks []*Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if ka, kb := foldKey(a.Artist), foldKey(b.Artist); ka != kb {
			return ka < kb
		}
		if ka, kb := foldKey(a.Name), foldKey(b.Name); ka != kb {
			return ka < kb
		}
		return a.TrackID < b.TrackID
	})
}
