package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"tempo/internal/services"
)

// Decoder produces mono samples in [-1, 1] from source.
type Decoder interface {
	Decode(ctx context.Context, source string) (samples []float64, sampleRate int, err error)
}

// FFmpegDecoder decodes through the ffmpeg CLI, which also reads HTTP URLs.
type FFmpegDecoder struct {
	Binary     string
	SampleRate int
	// MaxSeconds limits how much audio is decoded. Zero decodes everything.
	MaxSeconds int
}

// Decode runs ffmpeg and parses its raw float output.
func (d FFmpegDecoder) Decode(ctx context.Context, source string) ([]float64, int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, 0, services.Wrap(services.ErrValidation, "analysis", "decode", "empty source", nil)
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = 22050
	}
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-i", source, "-vn", "-ac", "1", "-ar", strconv.Itoa(rate)}
	if d.MaxSeconds > 0 {
		args = append(args, "-t", strconv.Itoa(d.MaxSeconds))
	}
	args = append(args, "-f", "f32le", "-")

	binaryName := strings.TrimSpace(d.Binary)
	if binaryName == "" {
		binaryName = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binaryName, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, 0, services.Wrap(services.ErrUnsupported, "analysis", "decode", "ffmpeg not installed", err)
		case ctx.Err() != nil:
			return nil, 0, services.Wrap(services.ErrTimeout, "analysis", "decode", source, ctx.Err())
		default:
			return nil, 0, services.Wrap(services.ErrExternalTool, "analysis", "decode",
				fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(stderr.String())), err)
		}
	}
	return parseFloat32LE(stdout.Bytes()), rate, nil
}

func parseFloat32LE(data []byte) []float64 {
	samples := make([]float64, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples
}
