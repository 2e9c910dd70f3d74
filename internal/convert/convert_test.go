package convert_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempo/internal/convert"
	"tempo/internal/library"
	"tempo/internal/services"
	"tempo/internal/testsupport"
)

type fakeEncoder struct {
	codecs    []string
	listCalls atomic.Int32
	encodes   atomic.Int32
	fail      error
}

func (f *fakeEncoder) ListCodecs(context.Context) ([]string, error) {
	f.listCalls.Add(1)
	return f.codecs, nil
}

func (f *fakeEncoder) Encode(_ context.Context, src, dst, _ string) error {
	f.encodes.Add(1)
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(dst, []byte("mp3:"+src), 0o644)
}

func newConverter(t *testing.T, enc convert.Encoder) (*convert.Converter, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "conversions")
	c, err := convert.New(context.Background(), dir, enc, convert.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, dir
}

func aiffTrack(t *testing.T) *library.Track {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "three.aiff")
	testsupport.WriteFile(t, src, 128)
	return &library.Track{TrackID: 3, PersistentID: "PID3", Location: library.PathToLocation(src)}
}

func TestConvertCachesByTrackIdentity(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"libmp3lame"}}
	c, dir := newConverter(t, enc)
	track := aiffTrack(t)

	first, err := c.Convert(context.Background(), track)
	require.NoError(t, err)
	second, err := c.Convert(context.Background(), track)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), enc.encodes.Load())
	assert.Equal(t, filepath.Join(dir, "PID3", "three.mp3"), first)
	assert.Equal(t, map[string]string{"PID3": first}, c.All())
}

func TestConvertSelectsCodecOnce(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"aac", "libshine"}}
	c, _ := newConverter(t, enc)

	for i := range 3 {
		track := aiffTrack(t)
		track.PersistentID = "T" + string(rune('A'+i))
		_, err := c.Convert(context.Background(), track)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), enc.listCalls.Load())
}

func TestConvertWithoutMP3Codec(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"aac", "flac"}}
	c, _ := newConverter(t, enc)

	_, err := c.Convert(context.Background(), aiffTrack(t))
	require.ErrorIs(t, err, convert.ErrNoCodecAvailable)
	assert.ErrorIs(t, err, services.ErrUnsupported)
	assert.Equal(t, int32(0), enc.encodes.Load())
}

func TestConvertMissingSource(t *testing.T) {
	c, _ := newConverter(t, &fakeEncoder{codecs: []string{"libmp3lame"}})
	track := &library.Track{TrackID: 9, Location: library.PathToLocation("/nope/missing.aiff")}

	_, err := c.Convert(context.Background(), track)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestConvertRejectsNilTrack(t *testing.T) {
	c, _ := newConverter(t, &fakeEncoder{codecs: []string{"libmp3lame"}})
	_, err := c.Convert(context.Background(), nil)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestConvertEncoderFailureIsNotCached(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"libmp3lame"}, fail: errors.New("boom")}
	c, _ := newConverter(t, enc)
	track := aiffTrack(t)

	_, err := c.Convert(context.Background(), track)
	require.Error(t, err)
	_, ok := c.Lookup(track.StableID())
	assert.False(t, ok)

	enc.fail = nil
	_, err = c.Convert(context.Background(), track)
	require.NoError(t, err)
	assert.Equal(t, int32(2), enc.encodes.Load())
}

func TestConcurrentConvertsOfSameTrackMayBothEncode(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"libmp3lame"}}
	c, _ := newConverter(t, enc)
	track := aiffTrack(t)

	var wg sync.WaitGroup
	outputs := make([]string, 2)
	for i := range outputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Convert(context.Background(), track)
			assert.NoError(t, err)
			outputs[i] = out
		}()
	}
	wg.Wait()

	assert.Equal(t, outputs[0], outputs[1])
	n := enc.encodes.Load()
	assert.True(t, n == 1 || n == 2, "encodes=%d", n)
}

func TestIndexSurvivesReopen(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"libmp3lame"}}
	dir := filepath.Join(t.TempDir(), "conversions")
	track := aiffTrack(t)

	c, err := convert.New(context.Background(), dir, enc, convert.Options{})
	require.NoError(t, err)
	out, err := c.Convert(context.Background(), track)
	require.NoError(t, err)
	folder, err := c.Folder(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := convert.New(context.Background(), dir, enc, convert.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	cached, ok := reopened.Lookup("PID3")
	require.True(t, ok)
	assert.Equal(t, out, cached)
	again, err := reopened.Folder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, folder.ID, again.ID)
}

func TestFolderRecreatedWithNewIdentity(t *testing.T) {
	enc := &fakeEncoder{codecs: []string{"libmp3lame"}}
	c, dir := newConverter(t, enc)
	track := aiffTrack(t)

	_, err := c.Convert(context.Background(), track)
	require.NoError(t, err)
	before, err := c.Folder(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))

	after, err := c.Folder(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Empty(t, c.All())

	_, err = c.Convert(context.Background(), track)
	require.NoError(t, err)
	assert.Equal(t, int32(2), enc.encodes.Load())
}

func TestNeedsConversionByExtension(t *testing.T) {
	c, _ := newConverter(t, &fakeEncoder{})
	ctx := context.Background()

	assert.True(t, c.NeedsConversion(ctx, "/music/a.AIFF"))
	assert.True(t, c.NeedsConversion(ctx, "/music/a.aif"))
	assert.True(t, c.NeedsConversion(ctx, "/music/a.wma"))
	assert.False(t, c.NeedsConversion(ctx, "/music/a.mp3"))
	assert.False(t, c.NeedsConversion(ctx, "/music/a.flac"))
	assert.False(t, c.NeedsConversion(ctx, "/music/a.m4a"))
}

func TestNeedsConversionProbesM4A(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("ffprobe",
		`echo '{"streams":[{"index":0,"codec_type":"audio","codec_name":"alac"}],"format":{}}'`))
	dir := filepath.Join(t.TempDir(), "conversions")
	c, err := convert.New(context.Background(), dir, &fakeEncoder{}, convert.Options{
		Prober: convert.FFprobe{Binary: cfg.Encoder.FFprobeBinary},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.True(t, c.NeedsConversion(context.Background(), "/music/lossless.m4a"))
}

func TestFFmpegListCodecsParsesEncoderTable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("ffmpeg", `cat <<'OUT'
Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)
OUT`))

	codecs, err := convert.FFmpeg{Binary: cfg.Encoder.FFmpegBinary}.ListCodecs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aac", "libmp3lame"}, codecs)
}

func TestFFmpegEncodeReportsToolFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("ffmpeg", `echo "bad input" >&2; exit 1`))
	err := convert.FFmpeg{Binary: cfg.Encoder.FFmpegBinary}.Encode(context.Background(), "/in.aiff", "/out.mp3", "libmp3lame")
	require.ErrorIs(t, err, services.ErrExternalTool)
	assert.Contains(t, err.Error(), "bad input")
}

func TestFFmpegMissingBinaryIsUnsupported(t *testing.T) {
	missing := convert.FFmpeg{Binary: "/definitely/not/ffmpeg"}
	_, err := missing.ListCodecs(context.Background())
	assert.ErrorIs(t, err, services.ErrUnsupported)

	err = missing.Encode(context.Background(), "in.wav", "out.mp3", "libmp3lame")
	assert.ErrorIs(t, err, services.ErrUnsupported)

	_, err = convert.FFmpeg{Binary: "tempo-no-such-ffmpeg"}.ListCodecs(context.Background())
	assert.ErrorIs(t, err, services.ErrUnsupported)
}
