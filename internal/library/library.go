package library

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Library is the root of a parsed library file.
type Library struct {
	MajorVersion        int               `plist:"Major Version" json:"majorVersion"`
	MinorVersion        int               `plist:"Minor Version" json:"minorVersion"`
	ApplicationVersion  string            `plist:"Application Version,omitempty" json:"applicationVersion,omitempty"`
	Date                time.Time         `plist:"Date" json:"date"`
	Features            int               `plist:"Features,omitempty" json:"features,omitempty"`
	ShowContentRatings  bool              `plist:"Show Content Ratings" json:"showContentRatings"`
	MusicFolder         string            `plist:"Music Folder,omitempty" json:"musicFolder,omitempty"`
	LibraryPersistentID string            `plist:"Library Persistent ID" json:"libraryPersistentId"`
	Tracks              map[string]*Track `plist:"Tracks" json:"tracks"`
	Playlists           []*Playlist       `plist:"Playlists" json:"playlists"`
}

// Track is one entry of the library's track dictionary.
type Track struct {
	TrackID      int       `plist:"Track ID" json:"trackId"`
	Name         string    `plist:"Name,omitempty" json:"name,omitempty"`
	Artist       string    `plist:"Artist,omitempty" json:"artist,omitempty"`
	AlbumArtist  string    `plist:"Album Artist,omitempty" json:"albumArtist,omitempty"`
	Album        string    `plist:"Album,omitempty" json:"album,omitempty"`
	Genre        string    `plist:"Genre,omitempty" json:"genre,omitempty"`
	Kind         string    `plist:"Kind,omitempty" json:"kind,omitempty"`
	Size         int64     `plist:"Size,omitempty" json:"size,omitempty"`
	TotalTime    int64     `plist:"Total Time,omitempty" json:"totalTime,omitempty"`
	TrackNumber  int       `plist:"Track Number,omitempty" json:"trackNumber,omitempty"`
	Year         int       `plist:"Year,omitempty" json:"year,omitempty"`
	BPM          int       `plist:"BPM,omitempty" json:"bpm,omitempty"`
	DateModified time.Time `plist:"Date Modified,omitempty" json:"dateModified,omitzero"`
	DateAdded    time.Time `plist:"Date Added,omitempty" json:"dateAdded,omitzero"`
	BitRate      int       `plist:"Bit Rate,omitempty" json:"bitRate,omitempty"`
	SampleRate   int       `plist:"Sample Rate,omitempty" json:"sampleRate,omitempty"`
	PlayCount    int       `plist:"Play Count,omitempty" json:"playCount,omitempty"`
	Rating       int       `plist:"Rating,omitempty" json:"rating,omitempty"`
	Comments     string    `plist:"Comments,omitempty" json:"comments,omitempty"`
	PersistentID string    `plist:"Persistent ID" json:"persistentId"`
	TrackType    string    `plist:"Track Type,omitempty" json:"trackType,omitempty"`
	Location     string    `plist:"Location,omitempty" json:"location,omitempty"`
}

// Playlist is a user playlist, smart playlist, or folder.
type Playlist struct {
	Name                 string         `plist:"Name" json:"name"`
	Description          string         `plist:"Description,omitempty" json:"description,omitempty"`
	Master               bool           `plist:"Master,omitempty" json:"master,omitempty"`
	PlaylistID           int            `plist:"Playlist ID" json:"playlistId"`
	PlaylistPersistentID string         `plist:"Playlist Persistent ID" json:"playlistPersistentId"`
	ParentPersistentID   string         `plist:"Parent Persistent ID,omitempty" json:"parentPersistentId,omitempty"`
	DistinguishedKind    int            `plist:"Distinguished Kind,omitempty" json:"distinguishedKind,omitempty"`
	Visible              bool           `plist:"Visible,omitempty" json:"visible,omitempty"`
	AllItems             bool           `plist:"All Items" json:"allItems"`
	Folder               bool           `plist:"Folder,omitempty" json:"folder,omitempty"`
	Items                []PlaylistItem `plist:"Playlist Items,omitempty" json:"playlistItems,omitempty"`
}

// PlaylistItem references a track by numeric ID.
type PlaylistItem struct {
	TrackID int `plist:"Track ID" json:"trackId"`
}

// Meta summarizes a loaded library file.
type Meta struct {
	TrackCount    int       `json:"trackCount"`
	PlaylistCount int       `json:"playlistCount"`
	FileSize      int64     `json:"fileSize"`
	ModifiedAt    time.Time `json:"modifiedAt"`
	LoadedAt      time.Time `json:"loadedAt"`
}

// Clone returns a deep copy of l. Nil returns nil.
func (l *Library) Clone() *Library {
	if l == nil {
		return nil
	}
	out := *l
	out.Tracks = make(map[string]*Track, len(l.Tracks))
	for key, track := range l.Tracks {
		if track == nil {
			continue
		}
		t := *track
		out.Tracks[key] = &t
	}
	out.Playlists = make([]*Playlist, 0, len(l.Playlists))
	for _, pl := range l.Playlists {
		if pl == nil {
			continue
		}
		p := *pl
		p.Items = slices.Clone(pl.Items)
		out.Playlists = append(out.Playlists, &p)
	}
	return &out
}

// StableID returns the identity used for caching: the persistent ID, falling
// back to the numeric track ID.
func (t *Track) StableID() string {
	if t == nil {
		return ""
	}
	if id := strings.TrimSpace(t.PersistentID); id != "" {
		return id
	}
	return strconv.Itoa(t.TrackID)
}

// HasBPM reports whether the track already carries a tempo.
func (t *Track) HasBPM() bool {
	return t != nil && t.BPM > 0
}

// TrackByID looks up a track by its numeric ID.
func (l *Library) TrackByID(id int) (*Track, bool) {
	if l == nil {
		return nil, false
	}
	track, ok := l.Tracks[strconv.Itoa(id)]
	return track, ok
}

// FindTrack resolves a track by persistent ID or numeric ID string.
func (l *Library) FindTrack(id string) (*Track, bool) {
	if l == nil {
		return nil, false
	}
	if track, ok := l.Tracks[id]; ok {
		return track, true
	}
	for _, track := range l.Tracks {
		if strings.EqualFold(track.PersistentID, id) {
			return track, true
		}
	}
	return nil, false
}

// TrackByLocation returns the track stored at the given file path.
func (l *Library) TrackByLocation(path string) (*Track, bool) {
	if l == nil {
		return nil, false
	}
	want := NormalizePath(path)
	for _, track := range l.Tracks {
		if track.Location == "" {
			continue
		}
		p, err := LocationToPath(track.Location)
		if err == nil && p == want {
			return track, true
		}
	}
	return nil, false
}

// Meta derives summary information for the library.
func (l *Library) Meta() Meta {
	if l == nil {
		return Meta{}
	}
	return Meta{TrackCount: len(l.Tracks), PlaylistCount: len(l.Playlists)}
}
