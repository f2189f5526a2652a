// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// MelMaxFrequency is the top of the mel scale covered by the filter bank.
const MelMaxFrequency = 20000.0

// HzToMel converts a frequency to the mel scale.
func HzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// MelToHz converts a mel value back to Hz.
func MelToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilter is one triangular filter. Only [lo, hi) can be non-zero.
type melFilter struct {
	weights []float32
	lo, hi  int
	center  float64
}

// MelFilterBank projects a spectrum onto M triangular filters spaced evenly on
// the mel scale between 0 Hz and MelMaxFrequency. Each filter is normalised
// to unit area, so a constant spectrum maps to the same constant.
type MelFilterBank struct {
	filters []melFilter
	bins    int
}

// NewMelFilterBank builds a bank of count filters for spectra produced from
// frames of width samples at sampleRate Hz.
func NewMelFilterBank(count, width int, sampleRate float64) (*MelFilterBank, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: mel filter count must be at least 1, got %d", ErrInvalidArgument, count)
	}
	if width < 2 || width%2 != 0 {
		return nil, fmt.Errorf("%w: spectrum width must be even and at least 2, got %d", ErrInvalidArgument, width)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidArgument, sampleRate)
	}

	bins := width / 2
	melMin, melMax := HzToMel(0), HzToMel(MelMaxFrequency)
	step := (melMax - melMin) / float64(count+1)

	points := make([]int, count+2)
	centers := make([]float64, count+2)
	for i := range points {
		hz := MelToHz(melMin + float64(i)*step)
		centers[i] = hz
		// Above Nyquist the edges collapse onto the last bin.
		points[i] = min(int(math.Floor(hz*float64(width)/sampleRate)), bins)
	}

	filters := make([]melFilter, count)
	for m := range filters {
		l, c, r := points[m], points[m+1], points[m+2]
		weights := make([]float32, bins)

		var area float64
		for j := l; j < c; j++ {
			w := float64(j-l) / float64(c-l)
			weights[j] = float32(w)
			area += w
		}
		for j := c; j < r; j++ {
			w := float64(r-j) / float64(r-c)
			weights[j] = float32(w)
			area += w
		}
		if area > 0 {
			for j := l; j < r; j++ {
				weights[j] = float32(float64(weights[j]) / area)
			}
		}

		filters[m] = melFilter{weights: weights, lo: l, hi: r, center: centers[m+1]}
	}

	return &MelFilterBank{filters: filters, bins: bins}, nil
}

// Len returns the number of filters.
func (b *MelFilterBank) Len() int { return len(b.filters) }

// Bins returns the spectrum length the bank expects.
func (b *MelFilterBank) Bins() int { return b.bins }

// CenterFrequencies returns each filter's nominal centre in Hz.
func (b *MelFilterBank) CenterFrequencies() []float64 {
	out := make([]float64, len(b.filters))
	for i, f := range b.filters {
		out[i] = f.center
	}
	return out
}

// Weights returns a copy of filter m's weights.
func (b *MelFilterBank) Weights(m int) []float32 {
	if m < 0 || m >= len(b.filters) {
		return nil
	}
	out := make([]float32, b.bins)
	copy(out, b.filters[m].weights)
	return out
}

// Apply returns one energy value per filter.
func (b *MelFilterBank) Apply(spectrum Spectrum) ([]float32, error) {
	out := make([]float32, len(b.filters))
	if err := b.ApplyInto(out, spectrum); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyInto writes the filter energies into dst without allocating.
func (b *MelFilterBank) ApplyInto(dst []float32, spectrum Spectrum) error {
	if len(spectrum) != b.bins {
		return fmt.Errorf("%w: spectrum has %d bins, mel bank expects %d", ErrInvalidArgument, len(spectrum), b.bins)
	}
	if len(dst) != len(b.filters) {
		return fmt.Errorf("%w: destination has %d values, mel bank has %d filters", ErrInvalidArgument, len(dst), len(b.filters))
	}

	for m, f := range b.filters {
		var sum float32
		for j := f.lo; j < f.hi; j++ {
			sum += f.weights[j] * spectrum[j]
		}
		dst[m] = sum
	}
	return nil
}
