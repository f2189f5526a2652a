// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"sync/atomic"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
)

// Gate forwards a frame to the wrapped receiver only when the loudest bin of
// any channel exceeds the threshold. Quiet frames are dropped so downstream
// effects stay still during silence.
type Gate struct {
	next      analysis.SpectrumReceiver
	threshold float32

	passed  atomic.Uint64
	blocked atomic.Uint64
}

// NewGate wraps next with a magnitude gate.
func NewGate(threshold float32, next analysis.SpectrumReceiver) (*Gate, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: gate needs a receiver", audio.ErrInvalidArgument)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("%w: gate threshold %f must be >= 0", audio.ErrInvalidArgument, threshold)
	}
	return &Gate{next: next, threshold: threshold}, nil
}

// Open reports whether a frame would pass the gate.
func (g *Gate) Open(spectra audio.PerChannel[analysis.Spectrum]) bool {
	for _, s := range spectra {
		if _, peak := s.Peak(); peak > g.threshold {
			return true
		}
	}
	return false
}

// Receive implements analysis.SpectrumReceiver.
func (g *Gate) Receive(spectra audio.PerChannel[analysis.Spectrum]) error {
	if !g.Open(spectra) {
		g.blocked.Add(1)
		return nil
	}
	g.passed.Add(1)
	return g.next.Receive(spectra)
}

// Stats returns how many frames passed and how many were blocked.
func (g *Gate) Stats() (passed, blocked uint64) {
	return g.passed.Load(), g.blocked.Load()
}

var _ analysis.SpectrumReceiver = (*Gate)(nil)
