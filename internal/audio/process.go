package audio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Recognition input parameters.
const (
	TargetSampleRate = 16000
	TargetPeak       = 0.9
)

// ErrEmptyWaveform indicates a buffer without any samples.
var ErrEmptyWaveform = errors.New("waveform has no samples")

// MixToMono averages all channels into a single channel.
func MixToMono(buffer *Buffer) []float64 {
	frames := buffer.Frames()
	mono := make([]float64, frames)

	if len(buffer.Channels) == 0 {
		return mono
	}

	for _, channel := range buffer.Channels {
		floats.Add(mono, channel[:frames])
	}

	if len(buffer.Channels) > 1 {
		floats.Scale(1/float64(len(buffer.Channels)), mono)
	}

	return mono
}

// Resample converts samples from one rate to another by piecewise linear
// interpolation. It returns a copy when the rates already match.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}

	if fromRate == toRate || len(samples) < 2 {
		out := make([]float64, len(samples))
		copy(out, samples)

		return out, nil
	}

	positions := make([]float64, len(samples))
	floats.Span(positions, 0, float64(len(samples)-1))

	var predictor interp.PiecewiseLinear

	fitErr := predictor.Fit(positions, samples)
	if fitErr != nil {
		return nil, fmt.Errorf("failed to fit resampler: %w", fitErr)
	}

	ratio := float64(fromRate) / float64(toRate)
	outLength := int(math.Floor(float64(len(samples)-1)/ratio)) + 1
	last := positions[len(positions)-1]

	out := make([]float64, outLength)
	for index := range out {
		out[index] = predictor.Predict(math.Min(float64(index)*ratio, last))
	}

	return out, nil
}

// PeakNormalize scales samples in place so the largest magnitude equals peak.
// Silent input is left untouched.
func PeakNormalize(samples []float64, peak float64) {
	if len(samples) == 0 {
		return
	}

	maxAbs := floats.Norm(samples, math.Inf(1))
	if maxAbs == 0 {
		return
	}

	floats.Scale(peak/maxAbs, samples)
}

// PrepareForRecognition mixes the buffer to mono, resamples it to
// TargetSampleRate and normalizes its peak to TargetPeak.
func PrepareForRecognition(buffer *Buffer) ([]float64, error) {
	if buffer == nil || buffer.Frames() == 0 {
		return nil, ErrEmptyWaveform
	}

	mono := MixToMono(buffer)

	resampled, resampleErr := Resample(mono, buffer.SampleRate, TargetSampleRate)
	if resampleErr != nil {
		return nil, resampleErr
	}

	PeakNormalize(resampled, TargetPeak)

	return resampled, nil
}
