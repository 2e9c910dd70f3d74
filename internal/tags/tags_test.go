package tags_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/library"
	"tempo/internal/services"
	"tempo/internal/tags"
	"tempo/internal/testsupport"
)

func TestWriteBPMToMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	testsupport.WriteMP3Stub(t, path)

	require.NoError(t, tags.FileWriter{}.WriteTag(context.Background(), path, "BPM", "127.6", ""))

	info, err := tags.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 128, info.BPM)

	require.NoError(t, tags.FileWriter{}.WriteTag(context.Background(), path, tags.TagBPM, "90", ""))
	info, err = tags.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 90, info.BPM, "rewriting replaces the previous frame")
}

func TestWriteRatingKeepsOtherUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	testsupport.WriteMP3Stub(t, path)
	w := tags.FileWriter{}
	ctx := context.Background()

	require.NoError(t, w.WriteTag(ctx, path, tags.TagRating, "100", "a@example.com"))
	require.NoError(t, w.WriteTag(ctx, path, tags.TagRating, "40", "b@example.com"))
	require.NoError(t, w.WriteTag(ctx, path, tags.TagRating, "60", "a@example.com"))

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tag.Close()

	ratings := map[string]uint8{}
	for _, f := range tag.GetFrames(tag.CommonID("Popularimeter")) {
		popm, ok := f.(id3v2.PopularimeterFrame)
		require.True(t, ok)
		ratings[popm.Email] = popm.Rating
	}
	assert.Equal(t, map[string]uint8{"a@example.com": 153, "b@example.com": 102}, ratings)
}

func TestWriteTagsToFLAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.flac")
	testsupport.WriteFLACStub(t, path)
	w := tags.FileWriter{}
	ctx := context.Background()

	require.NoError(t, w.WriteTag(ctx, path, tags.TagGenre, "Techno", ""))
	require.NoError(t, w.WriteTag(ctx, path, tags.TagBPM, "133", ""))
	require.NoError(t, w.WriteTag(ctx, path, tags.TagBPM, "134", ""))

	info, err := tags.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "FLAC", info.Format)
	assert.Equal(t, "Techno", info.Genre)
	assert.Equal(t, 134, info.BPM)
}

func TestWriteTagToFramelessFLACFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.flac")
	testsupport.WriteFLACStub(t, path)
	// Drop the audio frame so only the marker and STREAMINFO remain.
	require.NoError(t, os.Truncate(path, 4+4+34))

	var err error
	require.NotPanics(t, func() {
		err = tags.FileWriter{}.WriteTag(context.Background(), path, tags.TagBPM, "128", "")
	})
	assert.True(t, errors.Is(err, services.ErrIO), "got %v", err)
}

func TestWriteTagErrors(t *testing.T) {
	dir := t.TempDir()
	w := tags.FileWriter{}
	ctx := context.Background()

	err := w.WriteTag(ctx, filepath.Join(dir, "missing.mp3"), tags.TagBPM, "120", "")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)

	wav := filepath.Join(dir, "a.wav")
	testsupport.WriteFile(t, wav, 64)
	err = w.WriteTag(ctx, wav, tags.TagBPM, "120", "")
	assert.True(t, errors.Is(err, services.ErrUnsupported), "got %v", err)

	mp3 := filepath.Join(dir, "b.mp3")
	testsupport.WriteMP3Stub(t, mp3)
	err = w.WriteTag(ctx, mp3, tags.TagBPM, "fast", "")
	assert.True(t, errors.Is(err, services.ErrValidation), "got %v", err)

	err = w.WriteTag(ctx, mp3, tags.TagRating, "101", "")
	assert.True(t, errors.Is(err, services.ErrValidation), "got %v", err)

	err = w.WriteTag(ctx, mp3, "lyrics", "la la", "")
	assert.True(t, errors.Is(err, services.ErrUnsupported), "got %v", err)
}

func TestReadUntaggedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.bin")
	testsupport.WriteFile(t, path, 128)
	info, err := tags.Read(path)
	require.NoError(t, err)
	assert.Zero(t, info.BPM)
}

func TestApplySetsTrackFields(t *testing.T) {
	track := &library.Track{}
	tags.Apply(track, "BPM", "128")
	tags.Apply(track, "rating", "80")
	tags.Apply(track, "comment", "peak time")
	tags.Apply(track, " Genre ", "Techno")
	tags.Apply(track, "unknown", "ignored")

	assert.Equal(t, 128, track.BPM)
	assert.Equal(t, 80, track.Rating)
	assert.Equal(t, "peak time", track.Comments)
	assert.Equal(t, "Techno", track.Genre)
}
