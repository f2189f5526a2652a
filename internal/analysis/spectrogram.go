// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"spectrum/internal/audio"
)

// Spectrogram is the rolling per-channel history of the last H spectra plus
// the peak magnitude and RMS of each. Before H pushes the missing rows read
// as zeros. Callers synchronise access.
type Spectrogram struct {
	series  []*TimeSeries
	peaks   []*TimeSeries
	rms     []*TimeSeries
	length  int
	width   int
	pushes  uint64
	scratch []float32
}

// NewSpectrogram allocates storage for channels x length spectra of width
// bins.
func NewSpectrogram(channels, length, width int) (*Spectrogram, error) {
	if channels < 1 || length < 1 || width < 1 {
		return nil, fmt.Errorf("%w: spectrogram needs positive dimensions, got %dx%dx%d",
			ErrInvalidArgument, channels, length, width)
	}

	s := &Spectrogram{
		series:  make([]*TimeSeries, channels),
		peaks:   make([]*TimeSeries, channels),
		rms:     make([]*TimeSeries, channels),
		length:  length,
		width:   width,
		scratch: make([]float32, 1),
	}
	for ch := range channels {
		s.series[ch] = NewTimeSeries(length, width)
		s.peaks[ch] = NewTimeSeries(length, 1)
		s.rms[ch] = NewTimeSeries(length, 1)
	}
	return s, nil
}

// Channels returns the channel count.
func (s *Spectrogram) Channels() int { return len(s.series) }

// Length returns H.
func (s *Spectrogram) Length() int { return s.length }

// Width returns the number of bins per spectrum.
func (s *Spectrogram) Width() int { return s.width }

// Pushes returns how many frames were pushed in total.
func (s *Spectrogram) Pushes() uint64 { return s.pushes }

// Stored returns how many real spectra are held, at most H.
func (s *Spectrogram) Stored() int {
	return int(min(s.pushes, uint64(s.length)))
}

// PushSpectrums appends one frame, which must carry a spectrum per channel.
func (s *Spectrogram) PushSpectrums(spectra audio.PerChannel[Spectrum]) error {
	if len(spectra) != len(s.series) {
		return fmt.Errorf("%w: got spectra for %d channels, spectrogram has %d",
			ErrInvalidArgument, len(spectra), len(s.series))
	}
	for ch, spectrum := range spectra {
		if len(spectrum) != s.width {
			return fmt.Errorf("%w: channel %d spectrum has %d bins, want %d",
				ErrInvalidArgument, ch, len(spectrum), s.width)
		}
	}

	for ch, spectrum := range spectra {
		s.series[ch].Push(spectrum)

		_, peak := spectrum.Peak()
		s.scratch[0] = peak
		s.peaks[ch].Push(s.scratch)

		var sum float64
		for _, v := range spectrum {
			sum += float64(v) * float64(v)
		}
		s.scratch[0] = float32(math.Sqrt(sum / float64(len(spectrum))))
		s.rms[ch].Push(s.scratch)
	}
	s.pushes++
	return nil
}

// LatestSpectrum returns a copy of the newest spectrum of every channel.
func (s *Spectrogram) LatestSpectrum() audio.PerChannel[Spectrum] {
	out := make(audio.PerChannel[Spectrum], len(s.series))
	for ch, series := range s.series {
		out[ch] = Spectrum(series.Latest()).Clone()
	}
	return out
}

// SpectrogramForChannel returns a flattened copy of channel ch, oldest row
// first, with its width and length. An unknown channel yields no data.
func (s *Spectrogram) SpectrogramForChannel(ch int) ([]float32, uint32, uint32) {
	if ch < 0 || ch >= len(s.series) {
		return nil, 0, 0
	}
	return s.series[ch].Data(), uint32(s.width), uint32(s.length)
}

// Peaks returns channel ch's per-frame peak magnitudes, oldest first.
func (s *Spectrogram) Peaks(ch int) []float32 {
	if ch < 0 || ch >= len(s.peaks) {
		return nil
	}
	return s.peaks[ch].Data()
}

// RMS returns channel ch's per-frame spectral RMS, oldest first.
func (s *Spectrogram) RMS(ch int) []float32 {
	if ch < 0 || ch >= len(s.rms) {
		return nil
	}
	return s.rms[ch].Data()
}

// Reset zeroes all history.
func (s *Spectrogram) Reset() {
	for ch := range s.series {
		s.series[ch].Reset()
		s.peaks[ch].Reset()
		s.rms[ch].Reset()
	}
	s.pushes = 0
}
