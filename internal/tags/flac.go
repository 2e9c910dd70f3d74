package tags

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/go-flac/go-flac"

	"tempo/internal/services"
)

const vorbisVendor = "tempo"

var vorbisKeys = map[string]string{
	TagBPM:     "BPM",
	TagRating:  "RATING",
	TagComment: "COMMENT",
	TagGenre:   "GENRE",
}

func writeFLAC(path, name, value string) (err error) {
	// The FLAC parser indexes into the audio stream without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrIO, "tags", "parse flac", path, fmt.Errorf("malformed file: %v", r))
		}
	}()

	f, err := flac.ParseFile(path)
	if err != nil {
		return services.Wrap(services.ErrIO, "tags", "parse flac", path, err)
	}

	var block *flac.MetaDataBlock
	for _, meta := range f.Meta {
		if meta.Type == flac.VorbisComment {
			block = meta
			break
		}
	}

	comments := &vorbisComment{Vendor: vorbisVendor}
	if block != nil {
		if comments, err = parseVorbisComment(block.Data); err != nil {
			return services.Wrap(services.ErrIO, "tags", "parse vorbis comment", path, err)
		}
	} else {
		block = &flac.MetaDataBlock{Type: flac.VorbisComment}
		f.Meta = append(f.Meta, block)
	}

	comments.Set(vorbisKeys[name], value)
	block.Data = comments.Marshal()

	if err := f.Save(path); err != nil {
		return services.Wrap(services.ErrIO, "tags", "save flac", path, err)
	}
	return nil
}

type vorbisComment struct {
	Vendor   string
	Comments []string
}

// Set replaces every KEY=... entry with a single KEY=value. Keys compare
// case-insensitively.
func (vc *vorbisComment) Set(key, value string) {
	out := vc.Comments[:0]
	for _, c := range vc.Comments {
		k, _, _ := strings.Cut(c, "=")
		if strings.EqualFold(k, key) {
			continue
		}
		out = append(out, c)
	}
	vc.Comments = append(out, key+"="+value)
}

// Get returns the first value stored under key.
func (vc *vorbisComment) Get(key string) (string, bool) {
	for _, c := range vc.Comments {
		k, v, ok := strings.Cut(c, "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func parseVorbisComment(data []byte) (*vorbisComment, error) {
	r := bytes.NewReader(data)
	vendor, err := readLengthPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("vendor: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("comment count: %w", err)
	}
	if int64(count) > int64(r.Len()) {
		return nil, fmt.Errorf("comment count %d exceeds block size", count)
	}
	comments := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		c, err := readLengthPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		comments = append(comments, c)
	}
	return &vorbisComment{Vendor: vendor, Comments: comments}, nil
}

func readLengthPrefixed(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (vc *vorbisComment) Marshal() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(vc.Vendor)))
	buf.WriteString(vc.Vendor)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(vc.Comments)))
	for _, c := range vc.Comments {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(c)))
		buf.WriteString(c)
	}
	return buf.Bytes()
}
