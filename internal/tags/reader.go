package tags

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"tempo/internal/services"
)

// Info is the subset of tag data tempo displays.
type Info struct {
	Format string
	Title  string
	Artist string
	Album  string
	Genre  string
	BPM    int
}

// Read parses the tags of the file at path.
func Read(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, services.Wrap(services.ErrNotFound, "tags", "read", path, err)
		}
		return Info{}, services.Wrap(services.ErrIO, "tags", "read", path, err)
	}
	defer f.Close()

	md, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Info{}, nil
		}
		return Info{}, services.Wrap(services.ErrUnsupported, "tags", "read", path, err)
	}
	return Info{
		Format: string(md.FileType()),
		Title:  md.Title(),
		Artist: md.Artist(),
		Album:  md.Album(),
		Genre:  md.Genre(),
		BPM:    rawBPM(md.Raw()),
	}, nil
}

func rawBPM(raw map[string]interface{}) int {
	for _, key := range []string{"TBPM", "bpm", "BPM", "tmpo"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return int(n + 0.5)
			}
		case int:
			return val
		}
	}
	return 0
}
