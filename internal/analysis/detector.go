package analysis

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"tempo/internal/services"
)

// ErrNoBeat means the signal is too short or too flat to carry a tempo.
var ErrNoBeat = fmt.Errorf("%w: no beat detected", services.ErrValidation)

const (
	frameSize = 1024
	hopSize   = 256
	// Tempo candidates are weighted toward this value so a beat and its
	// half-time do not tie.
	preferredBPM = 120.0
)

// Detector estimates the tempo of mono samples.
type Detector interface {
	Analyze(ctx context.Context, samples []float64, sampleRate int) (float64, error)
}

// FluxDetector finds the beat period by autocorrelating a spectral flux
// onset envelope.
type FluxDetector struct {
	MinBPM float64
	MaxBPM float64
}

// Analyze returns the estimated BPM.
func (d FluxDetector) Analyze(ctx context.Context, samples []float64, sampleRate int) (float64, error) {
	minBPM, maxBPM := d.MinBPM, d.MaxBPM
	if minBPM <= 0 {
		minBPM = 60
	}
	if maxBPM <= minBPM {
		maxBPM = 200
	}
	if sampleRate <= 0 {
		return 0, services.Wrap(services.ErrValidation, "analysis", "detect", "sample rate must be positive", nil)
	}

	envelope, err := onsetEnvelope(ctx, samples)
	if err != nil {
		return 0, err
	}
	frameRate := float64(sampleRate) / hopSize
	minLag := int(math.Floor(60 * frameRate / maxBPM))
	maxLag := int(math.Ceil(60 * frameRate / minBPM))
	if minLag < 1 {
		minLag = 1
	}
	if len(envelope) < 2*maxLag {
		return 0, ErrNoBeat
	}

	corr := make([]float64, maxLag+2)
	for lag := minLag - 1; lag <= maxLag+1; lag++ {
		if lag < 1 {
			continue
		}
		var sum float64
		n := len(envelope) - lag
		for i := 0; i < n; i++ {
			sum += envelope[i] * envelope[i+lag]
		}
		corr[lag] = sum / float64(n)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		bpm := 60 * frameRate / float64(lag)
		octaves := math.Log2(bpm / preferredBPM)
		score := corr[lag] * math.Exp(-0.5*octaves*octaves)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 || bestScore <= 0 {
		return 0, ErrNoBeat
	}

	lag := float64(bestLag)
	if bestLag > 1 && bestLag+1 < len(corr) {
		left, mid, right := corr[bestLag-1], corr[bestLag], corr[bestLag+1]
		if denom := left - 2*mid + right; denom != 0 {
			shift := 0.5 * (left - right) / denom
			if math.Abs(shift) < 1 {
				lag += shift
			}
		}
	}
	bpm := 60 * frameRate / lag
	return math.Max(minBPM, math.Min(maxBPM, bpm)), nil
}

// onsetEnvelope returns the half-wave rectified spectral flux per hop with
// its local mean removed.
func onsetEnvelope(ctx context.Context, samples []float64) ([]float64, error) {
	if len(samples) < frameSize*2 {
		return nil, ErrNoBeat
	}
	fft := fourier.NewFFT(frameSize)
	window := hann(frameSize)
	frame := make([]float64, frameSize)
	coeffs := make([]complex128, frameSize/2+1)
	prev := make([]float64, len(coeffs))
	mag := make([]float64, len(coeffs))

	frames := (len(samples)-frameSize)/hopSize + 1
	flux := make([]float64, frames)
	var peak float64
	for f := 0; f < frames; f++ {
		if f%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start := f * hopSize
		for i := range frame {
			frame[i] = samples[start+i] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		var sum float64
		for i, c := range coeffs {
			mag[i] = math.Log1p(100 * math.Hypot(real(c), imag(c)))
			if f > 0 {
				if diff := mag[i] - prev[i]; diff > 0 {
					sum += diff
				}
			}
		}
		copy(prev, mag)
		flux[f] = sum
		peak = math.Max(peak, sum)
	}
	if peak == 0 {
		return nil, ErrNoBeat
	}

	const half = 8
	out := make([]float64, frames)
	for i := range flux {
		lo, hi := max(0, i-half), min(frames, i+half+1)
		var mean float64
		for _, v := range flux[lo:hi] {
			mean += v
		}
		mean /= float64(hi - lo)
		out[i] = math.Max(0, flux[i]-mean)
	}
	return out, nil
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// RoundBPM rounds a tempo to the integer stored in tags.
func RoundBPM(bpm float64) int {
	return int(math.Round(bpm))
}
