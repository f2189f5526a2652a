// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// WindowFunc selects the tapering applied to a frame before the FFT.
type WindowFunc int

// Available window functions. The zero value, Nuttall, is what the analyzer
// uses unless configured otherwise.
const (
	Nuttall WindowFunc = iota
	Hann
	BlackmanNuttall
	Blackman
	Hamming
)

// String implements fmt.Stringer.
func (w WindowFunc) String() string {
	switch w {
	case Nuttall:
		return "Nuttall"
	case Hann:
		return "Hann"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Blackman:
		return "Blackman"
	case Hamming:
		return "Hamming"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a case-insensitive name into a WindowFunc.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "nuttall":
		return Nuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "blackman":
		return Blackman, nil
	case "hamming":
		return Hamming, nil
	default:
		return Nuttall, fmt.Errorf("%w: unknown window function %q", ErrInvalidArgument, name)
	}
}

// Window holds precomputed window coefficients and the sums used to
// normalise FFT magnitudes. It is immutable and safe to share.
type Window struct {
	kind       WindowFunc
	weights    []float32
	sum        float64 // sum of weights, the magnitude normaliser
	sumSquares float64
	nenbw      float64 // normalised equivalent noise bandwidth, in bins
	enbw       float64 // effective noise bandwidth, in Hz
}

// NewWindow computes a window of the given width for a stream sampled at
// sampleRate Hz.
func NewWindow(kind WindowFunc, width int, sampleRate float64) (*Window, error) {
	if width < 2 {
		return nil, fmt.Errorf("%w: window width must be at least 2, got %d", ErrInvalidArgument, width)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidArgument, sampleRate)
	}

	// gonum windows scale the sequence in place, so start from ones.
	coeffs := make([]float64, width)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch kind {
	case Nuttall:
		window.Nuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	default:
		return nil, fmt.Errorf("%w: unknown window function %d", ErrInvalidArgument, int(kind))
	}

	sum := floats.Sum(coeffs)
	sumSquares := floats.Dot(coeffs, coeffs)
	nenbw := float64(width) * sumSquares / (sum * sum)

	weights := make([]float32, width)
	for i, c := range coeffs {
		weights[i] = float32(c)
	}

	return &Window{
		kind:       kind,
		weights:    weights,
		sum:        sum,
		sumSquares: sumSquares,
		nenbw:      nenbw,
		enbw:       nenbw * sampleRate / float64(width),
	}, nil
}

// Kind returns the window function.
func (w *Window) Kind() WindowFunc { return w.kind }

// Len returns the window width.
func (w *Window) Len() int { return len(w.weights) }

// Weights returns a copy of the coefficients.
func (w *Window) Weights() []float32 {
	out := make([]float32, len(w.weights))
	copy(out, w.weights)
	return out
}

// Sum returns the sum of the coefficients.
func (w *Window) Sum() float64 { return w.sum }

// SumSquares returns the sum of the squared coefficients.
func (w *Window) SumSquares() float64 { return w.sumSquares }

// NENBW returns the normalised equivalent noise bandwidth in bins.
func (w *Window) NENBW() float64 { return w.nenbw }

// ENBW returns the effective noise bandwidth in Hz.
func (w *Window) ENBW() float64 { return w.enbw }
