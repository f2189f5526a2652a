// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"

	"spectrum/internal/audio"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftWorkspace holds the buffers reused for every frame.
type fftWorkspace struct {
	input  []float64    // windowed frame
	coeffs []complex128 // FFT output, W/2+1 values for real input
}

// FFTAnalyzer turns one channel frame of W samples into a W/2 bin magnitude
// spectrum. It reuses its workspace, so an instance must only be used from one
// goroutine at a time.
type FFTAnalyzer struct {
	width      int
	sampleRate float64
	window     *Window
	fft        *fourier.FFT
	workspace  fftWorkspace
}

// NewFFTAnalyzer plans an FFT of the given even width. Pass Nuttall unless
// there is a reason to trade sidelobe rejection for a narrower main lobe.
func NewFFTAnalyzer(width int, sampleRate float64, kind WindowFunc) (*FFTAnalyzer, error) {
	if width < 2 || width%2 != 0 {
		return nil, fmt.Errorf("%w: spectrum width must be even and at least 2, got %d", ErrInvalidArgument, width)
	}

	win, err := NewWindow(kind, width, sampleRate)
	if err != nil {
		return nil, err
	}

	return &FFTAnalyzer{
		width:      width,
		sampleRate: sampleRate,
		window:     win,
		fft:        fourier.NewFFT(width),
		workspace: fftWorkspace{
			input:  make([]float64, width),
			coeffs: make([]complex128, width/2+1),
		},
	}, nil
}

// Width returns the frame width W.
func (f *FFTAnalyzer) Width() int { return f.width }

// Bins returns the spectrum length W/2.
func (f *FFTAnalyzer) Bins() int { return f.width / 2 }

// Window returns the analysis window.
func (f *FFTAnalyzer) Window() *Window { return f.window }

// FrequencyForBin returns the centre frequency in Hz of bin k.
func (f *FFTAnalyzer) FrequencyForBin(k int) float64 {
	if k < 0 || k >= f.Bins() {
		return 0
	}
	return f.fft.Freq(k) * f.sampleRate
}

// Analyze windows the frame, transforms it and returns a new spectrum.
func (f *FFTAnalyzer) Analyze(frame []audio.Sample) (Spectrum, error) {
	spectrum := make(Spectrum, f.Bins())
	if err := f.AnalyzeInto(spectrum, frame); err != nil {
		return nil, err
	}
	return spectrum, nil
}

// AnalyzeInto writes the magnitude spectrum of frame into dst without
// allocating. spectrum[k] = |Z[k]| / sum(window) and the DC bin is forced to
// zero.
func (f *FFTAnalyzer) AnalyzeInto(dst Spectrum, frame []audio.Sample) error {
	if len(frame) != f.width {
		return fmt.Errorf("%w: frame has %d samples, analyzer width is %d", ErrInvalidArgument, len(frame), f.width)
	}
	if len(dst) != f.Bins() {
		return fmt.Errorf("%w: spectrum has %d bins, want %d", ErrInvalidArgument, len(dst), f.Bins())
	}

	weights := f.window.weights
	for i, s := range frame {
		f.workspace.input[i] = float64(s) * float64(weights[i])
	}

	f.fft.Coefficients(f.workspace.coeffs, f.workspace.input)

	norm := f.window.sum
	for k := range dst {
		dst[k] = float32(cmplx.Abs(f.workspace.coeffs[k]) / norm)
	}
	dst[0] = 0

	return nil
}
