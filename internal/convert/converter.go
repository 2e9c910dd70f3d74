package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/media/ffprobe"
	"tempo/internal/services"
)

// ErrNoCodecAvailable means the encoder offers none of the preferred codecs.
var ErrNoCodecAvailable = fmt.Errorf("%w: no MP3 codec available", services.ErrUnsupported)

var convertExtensions = map[string]struct{}{
	".aif": {}, ".aiff": {}, ".aifc": {}, ".alac": {}, ".ape": {}, ".wma": {},
}

// Prober inspects media files.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// FFprobe adapts the ffprobe package to Prober.
type FFprobe struct {
	Binary string
}

func (p FFprobe) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Binary, path)
}

// Options configures a Converter.
type Options struct {
	CodecPreferences []string
	MinFreeBytes     int64
	Prober           Prober
	Logger           *slog.Logger
}

// Converter produces MP3 copies of tracks and remembers where it put them.
type Converter struct {
	encoder Encoder
	prober  Prober
	prefs   []string
	minFree int64
	logger  *slog.Logger

	mu     sync.Mutex
	folder Folder
	index  *Index
	cache  map[string]string

	codecMu  sync.Mutex
	codec    string
	codecErr error
	probed   bool
}

// New opens the conversion folder at dir, restores its index, and returns a
// Converter bound to encoder.
func New(ctx context.Context, dir string, encoder Encoder, opts Options) (*Converter, error) {
	prefs := opts.CodecPreferences
	if len(prefs) == 0 {
		prefs = []string{"libmp3lame", "libshine", "mp3"}
	}
	c := &Converter{
		encoder: encoder,
		prober:  opts.Prober,
		prefs:   prefs,
		minFree: opts.MinFreeBytes,
		logger:  logging.NewComponentLogger(opts.Logger, "convert"),
	}
	if err := c.open(ctx, dir); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Converter) open(ctx context.Context, dir string) error {
	folder, err := OpenFolder(dir)
	if err != nil {
		return services.Wrap(services.ErrIO, "convert", "open folder", dir, err)
	}
	index, err := OpenIndex(ctx, dir)
	if err != nil {
		return services.Wrap(services.ErrIO, "convert", "open index", dir, err)
	}
	entries, err := index.All(ctx)
	if err != nil {
		_ = index.Close()
		return services.Wrap(services.ErrIO, "convert", "load index", dir, err)
	}
	cache := make(map[string]string, len(entries))
	for _, e := range entries {
		if fileExists(e.OutputPath) {
			cache[e.TrackID] = e.OutputPath
		}
	}
	c.folder, c.index, c.cache = folder, index, cache
	c.logger.Info("conversion folder ready",
		logging.String("folder", folder.Path),
		logging.String("folder_id", folder.ID),
		logging.Int("cached", len(cache)))
	return nil
}

// Folder returns the current conversion folder. If the folder was removed
// from disk it is recreated under a new identity and the cache is dropped.
func (c *Converter) Folder(ctx context.Context) (Folder, error) {
	c.mu.Lock()
	current := c.folder
	c.mu.Unlock()
	if current.Intact() {
		return current, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.folder.Intact() {
		return c.folder, nil
	}
	logging.WarnWithContext(c.logger, "conversion folder vanished; recreating", "conversion_folder_reset",
		logging.String("folder", c.folder.Path),
		logging.String(logging.FieldImpact, "previous conversions will be redone"))
	_ = c.index.Close()
	if err := c.open(ctx, c.folder.Path); err != nil {
		return Folder{}, err
	}
	return c.folder, nil
}

// Close releases the index.
func (c *Converter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Close()
}

// NeedsConversion reports whether path is in a format the UI cannot play.
// For .m4a the codec decides: ALAC converts, AAC plays as-is.
func (c *Converter) NeedsConversion(ctx context.Context, path string) bool {
	if HasUnplayableExtension(path) {
		return true
	}
	if !strings.EqualFold(filepath.Ext(path), ".m4a") || c.prober == nil {
		return false
	}
	result, err := c.prober.Inspect(ctx, path)
	if err != nil {
		return true
	}
	return result.Codec() == "" || result.Lossless()
}

// HasUnplayableExtension reports whether path's extension always needs
// conversion. It cannot tell ALAC from AAC inside .m4a.
func HasUnplayableExtension(path string) bool {
	_, ok := convertExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Lookup returns the cached output for trackID when the file still exists.
func (c *Converter) Lookup(trackID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.cache[trackID]
	if !ok {
		return "", false
	}
	if !fileExists(out) {
		delete(c.cache, trackID)
		return "", false
	}
	return out, true
}

// All returns a snapshot of trackID -> output path.
func (c *Converter) All() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

// Convert returns an MP3 copy of track, encoding it on first request.
func (c *Converter) Convert(ctx context.Context, track *library.Track) (string, error) {
	if track == nil {
		return "", services.Wrap(services.ErrValidation, "convert", "convert", "missing track definition", nil)
	}
	id := track.StableID()
	if id == "" || id == "0" {
		return "", services.Wrap(services.ErrValidation, "convert", "convert", "track has no identity", nil)
	}
	logger := c.logger.With(logging.TrackID(id))

	if out, ok := c.Lookup(id); ok {
		logger.Debug("conversion cache hit", logging.String("output", out))
		return out, nil
	}

	src, err := library.LocationToPath(track.Location)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "convert", "resolve source", track.Location, err)
	}
	if !fileExists(src) {
		return "", services.Wrap(services.ErrNotFound, "convert", "resolve source", src, nil)
	}

	codec, err := c.selectCodec(ctx)
	if err != nil {
		return "", err
	}

	folder, err := c.Folder(ctx)
	if err != nil {
		return "", err
	}
	if err := c.checkFreeSpace(folder.Path); err != nil {
		return "", err
	}

	dir := folder.TrackDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, "convert", "create track dir", dir, err)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(dir, base+".mp3")

	logger.Info("converting track", logging.String("source", src), logging.String("codec", codec))
	if err := c.encoder.Encode(ctx, src, dst, codec); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[id] = dst
	index := c.index
	c.mu.Unlock()
	if err := index.Put(ctx, Entry{TrackID: id, SourcePath: src, OutputPath: dst, Codec: codec}); err != nil {
		logging.WarnWithContext(logger, "conversion index write failed", "conversion_index_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "conversion will be redone after a worker restart"))
	}
	return dst, nil
}

// selectCodec asks the encoder for its codecs once and picks the first
// preferred match.
func (c *Converter) selectCodec(ctx context.Context) (string, error) {
	c.codecMu.Lock()
	defer c.codecMu.Unlock()
	if c.probed {
		return c.codec, c.codecErr
	}
	available, err := c.encoder.ListCodecs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		c.probed, c.codecErr = true, err
		return "", err
	}
	c.probed = true
	for _, want := range c.prefs {
		if slices.Contains(available, want) {
			c.codec = want
			c.logger.Info("selected mp3 codec", logging.String("codec", want))
			return want, nil
		}
	}
	c.codecErr = ErrNoCodecAvailable
	return "", c.codecErr
}

func (c *Converter) checkFreeSpace(dir string) error {
	if c.minFree <= 0 {
		return nil
	}
	free, err := freeBytes(dir)
	if err != nil || free < 0 {
		return nil
	}
	if free < c.minFree {
		return services.Wrap(services.ErrIO, "convert", "preflight",
			fmt.Sprintf("only %d MiB free in %s", free>>20, dir), nil)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
