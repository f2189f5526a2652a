// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"sync/atomic"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/transport"
)

// Frame is the payload a Forwarder sends for every analyzer frame.
type Frame struct {
	Type     string      `json:"type"`
	Frame    uint64      `json:"frame"`
	Spectrum [][]float32 `json:"spectrum"`
}

// Stream implements transport.Periodic, so rate limited transports thin out
// frames without touching events.
func (f Frame) Stream() string { return f.Type }

// Forwarder sends every frame it receives to a transport. It relies on the
// transport to queue or drop and never waits on the network itself.
type Forwarder struct {
	transport transport.Transport
	frames    atomic.Uint64
	failures  atomic.Uint64
}

// NewForwarder creates a forwarder writing to t.
func NewForwarder(t transport.Transport) (*Forwarder, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: forwarder needs a transport", audio.ErrInvalidArgument)
	}
	return &Forwarder{transport: t}, nil
}

// Receive implements analysis.SpectrumReceiver. The spectra are shared with
// other receivers, so they are handed to the transport as-is and never
// written.
func (f *Forwarder) Receive(spectra audio.PerChannel[analysis.Spectrum]) error {
	values := make([][]float32, len(spectra))
	for ch, s := range spectra {
		values[ch] = s
	}
	frame := Frame{Type: "spectrum", Frame: f.frames.Add(1), Spectrum: values}
	if err := f.transport.Send(frame); err != nil {
		f.failures.Add(1)
		return fmt.Errorf("forwarding frame %d: %w", frame.Frame, err)
	}
	return nil
}

// Frames returns how many frames have been received.
func (f *Forwarder) Frames() uint64 { return f.frames.Load() }

// Failures returns how many sends failed.
func (f *Forwarder) Failures() uint64 { return f.failures.Load() }

var (
	_ analysis.SpectrumReceiver = (*Forwarder)(nil)
	_ transport.Periodic         = Frame{}
)
