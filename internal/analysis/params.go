// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"time"

	"spectrum/internal/audio"
)

// Errors shared with the audio package so callers only need one import.
var (
	ErrInvalidArgument  = audio.ErrInvalidArgument
	ErrInsufficientData = audio.ErrInsufficientData
)

// DefaultMelFilters is the mel bank size used when Options.MelFilters is 0.
const DefaultMelFilters = 40

// Spectrum is one channel's magnitude spectrum: W/2 non-negative bins where
// bin k sits at k*fs/W Hz.
type Spectrum []float32

// Clone returns a copy of the spectrum.
func (s Spectrum) Clone() Spectrum {
	out := make(Spectrum, len(s))
	copy(out, s)
	return out
}

// Peak returns the index and magnitude of the largest bin.
func (s Spectrum) Peak() (int, float32) {
	bin, peak := 0, float32(0)
	for k, v := range s {
		if v > peak {
			bin, peak = k, v
		}
	}
	return bin, peak
}

// Options configures a StreamAnalyzer.
type Options struct {
	RefreshPeriod   time.Duration
	HistoryDuration time.Duration
	SpectrumWidth   int
	MelFilters      int
	Window          WindowFunc
	Stream          audio.StreamParameters
}

// AnalyzerParameters are derived once at construction and never change.
type AnalyzerParameters struct {
	SpectrumWidth       int           // W, samples per analysis frame
	RefreshSamples      int           // R, new samples consumed per frame
	HistoryLength       int           // H, spectra kept per channel
	RefreshPeriod       time.Duration // R / fs
	SpectrogramDuration time.Duration // H * refresh period
	SampleRate          uint32
	Channels            int
	MelFilters          int
	BufferCapacity      int
}

// Bins returns the spectrum length W/2.
func (p AnalyzerParameters) Bins() int { return p.SpectrumWidth / 2 }

// Overlap returns how many samples consecutive frames share.
func (p AnalyzerParameters) Overlap() int { return p.SpectrumWidth - p.RefreshSamples }

// FrequencyForBin returns the frequency in Hz of bin k.
func (p AnalyzerParameters) FrequencyForBin(k int) float64 {
	if p.SpectrumWidth == 0 {
		return 0
	}
	return float64(k) * float64(p.SampleRate) / float64(p.SpectrumWidth)
}

// BinResolution returns the width of one bin in Hz.
func (p AnalyzerParameters) BinResolution() float64 { return p.FrequencyForBin(1) }

// NewAnalyzerParameters validates the options and derives R, H and the ring
// buffer capacity.
func NewAnalyzerParameters(opts Options) (AnalyzerParameters, error) {
	if err := opts.Stream.Validate(); err != nil {
		return AnalyzerParameters{}, err
	}
	if opts.SpectrumWidth < 2 || opts.SpectrumWidth%2 != 0 {
		return AnalyzerParameters{}, fmt.Errorf("%w: spectrum width must be even and at least 2, got %d",
			ErrInvalidArgument, opts.SpectrumWidth)
	}
	if opts.RefreshPeriod <= 0 {
		return AnalyzerParameters{}, fmt.Errorf("%w: refresh period must be positive, got %s",
			ErrInvalidArgument, opts.RefreshPeriod)
	}

	refresh := opts.Stream.SamplesFor(opts.RefreshPeriod)
	if refresh < 1 {
		return AnalyzerParameters{}, fmt.Errorf("%w: refresh period %s is shorter than one sample at %d Hz",
			ErrInvalidArgument, opts.RefreshPeriod, opts.Stream.SampleRate)
	}
	if refresh > opts.SpectrumWidth {
		return AnalyzerParameters{}, fmt.Errorf("%w: refresh of %d samples exceeds spectrum width %d",
			ErrInvalidArgument, refresh, opts.SpectrumWidth)
	}

	history := int(opts.HistoryDuration / opts.RefreshPeriod)
	if history < 1 {
		return AnalyzerParameters{}, fmt.Errorf("%w: history %s holds no refresh period of %s",
			ErrInvalidArgument, opts.HistoryDuration, opts.RefreshPeriod)
	}

	capacity := opts.Stream.SamplesFor(opts.HistoryDuration)
	if capacity < opts.SpectrumWidth {
		return AnalyzerParameters{}, fmt.Errorf("%w: history of %d samples is shorter than spectrum width %d",
			ErrInvalidArgument, capacity, opts.SpectrumWidth)
	}

	mels := opts.MelFilters
	if mels == 0 {
		mels = DefaultMelFilters
	}
	if mels < 0 {
		return AnalyzerParameters{}, fmt.Errorf("%w: mel filter count must be positive, got %d",
			ErrInvalidArgument, mels)
	}

	period := time.Duration(refresh) * time.Second / time.Duration(opts.Stream.SampleRate)

	return AnalyzerParameters{
		SpectrumWidth:       opts.SpectrumWidth,
		RefreshSamples:      refresh,
		HistoryLength:       history,
		RefreshPeriod:       period,
		SpectrogramDuration: time.Duration(history) * period,
		SampleRate:          opts.Stream.SampleRate,
		Channels:            int(opts.Stream.Channels),
		MelFilters:          mels,
		BufferCapacity:      capacity,
	}, nil
}
