// SPDX-License-Identifier: MIT
package analysis

import (
	"spectrum/internal/audio"

	"github.com/google/uuid"
)

// SpectrumReceiver gets every frame the analyzer computes: one spectrum per
// channel, all from the same instant. The spectra are shared between
// receivers and must be treated as read-only; they may be retained.
//
// Receive runs on the analysis goroutine. Slow receivers delay later frames
// but never the capture path. A receiver must not call ProcessNewSamples.
type SpectrumReceiver interface {
	Receive(spectra audio.PerChannel[Spectrum]) error
}

// ReceiverFunc adapts a plain function to SpectrumReceiver.
type ReceiverFunc func(spectra audio.PerChannel[Spectrum]) error

// Receive calls f.
func (f ReceiverFunc) Receive(spectra audio.PerChannel[Spectrum]) error {
	return f(spectra)
}

// ReceiverID identifies a registration so it can be removed later.
type ReceiverID uuid.UUID

// String implements fmt.Stringer.
func (id ReceiverID) String() string {
	return uuid.UUID(id).String()
}

// Provider is the read-only query surface other goroutines poll. Every method
// returns a copy and is total: before the first frame everything reads as
// zeros.
type Provider interface {
	AnalyzerParameters() AnalyzerParameters
	LatestSpectrum() audio.PerChannel[Spectrum]
	LatestMelBands() audio.PerChannel[[]float32]
	SpectrogramForChannel(ch int) (data []float32, width, length uint32)
	Frames() uint64
}

type registration struct {
	id       ReceiverID
	receiver SpectrumReceiver
}
