package convert

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"tempo/internal/services"
)

// Encoder transcodes one file with a named codec.
type Encoder interface {
	ListCodecs(ctx context.Context) ([]string, error)
	Encode(ctx context.Context, src, dst, codec string) error
}

// FFmpeg drives the ffmpeg CLI.
type FFmpeg struct {
	Binary     string
	Bitrate    string
	SampleRate int
}

// ListCodecs returns the names of the audio encoders ffmpeg was built with.
func (f FFmpeg) ListCodecs(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, f.binary(), "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if err != nil {
		if missingBinary(err) {
			return nil, services.Wrap(services.ErrUnsupported, "convert", "list codecs", "ffmpeg not installed", err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "convert", "list codecs", "", err)
	}
	return parseEncoders(out), nil
}

// parseEncoders extracts audio encoder names from `ffmpeg -encoders` output.
// Entries follow a "------" separator line as "<flags> <name> <description>";
// audio encoders have flags starting with 'A'.
func parseEncoders(out []byte) []string {
	var codecs []string
	started := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		codecs = append(codecs, fields[1])
	}
	return codecs
}

// Encode transcodes src into dst. Partial output is left for the caller to
// overwrite on retry.
func (f FFmpeg) Encode(ctx context.Context, src, dst, codec string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", src,
		"-vn", "-map_metadata", "0",
		"-c:a", codec,
	}
	if f.Bitrate != "" {
		args = append(args, "-b:a", f.Bitrate)
	}
	if f.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(f.SampleRate))
	}
	args = append(args, dst)

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if missingBinary(err) {
			return services.Wrap(services.ErrUnsupported, "convert", "encode", "ffmpeg not installed", err)
		}
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "convert", "encode", src, ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "convert", "encode",
			fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(stderr.String())), err)
	}
	return nil
}

func (f FFmpeg) binary() string {
	if b := strings.TrimSpace(f.Binary); b != "" {
		return b
	}
	return "ffmpeg"
}

// missingBinary covers both a PATH lookup miss and an absolute path that
// does not exist.
func missingBinary(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
