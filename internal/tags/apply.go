package tags

import (
	"strconv"
	"strings"

	"tempo/internal/library"
)

// Apply records a normalized tag value on the matching library track field.
// Unknown tag names are ignored.
func Apply(track *library.Track, name, value string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TagBPM:
		track.BPM, _ = strconv.Atoi(value)
	case TagRating:
		track.Rating, _ = strconv.Atoi(value)
	case TagComment:
		track.Comments = value
	case TagGenre:
		track.Genre = value
	}
}
