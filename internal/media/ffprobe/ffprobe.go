package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"tempo/internal/services"
)

// lossless codecs that browsers will not play from an MP4 container.
var lossless = map[string]struct{}{
	"alac": {}, "flac": {}, "pcm_s16be": {}, "pcm_s24be": {}, "pcm_s16le": {}, "pcm_s24le": {},
}

// Result holds the audio streams and container of an inspected file.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one audio stream.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type Format struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Inspect runs ffprobe on path, restricted to audio streams.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-select_streams", "a",
		"-show_entries", "stream=index,codec_name,sample_rate,channels:format=format_name,duration",
		"-of", "json", "--", path)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect",
			strings.TrimSpace(stderr.String()), err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe output for %s: %w", path, err)
	}
	return result, nil
}

// Codec returns the lower-cased codec of the first audio stream, or "" when
// the file has none.
func (r Result) Codec() string {
	if len(r.Streams) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(r.Streams[0].CodecName))
}

// Lossless reports whether the first audio stream uses a lossless codec.
func (r Result) Lossless() bool {
	_, ok := lossless[r.Codec()]
	return ok
}

// DurationSeconds returns the container duration, or 0 when ffprobe did not
// report a usable value.
func (r Result) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
