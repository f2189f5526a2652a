// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sample is one PCM amplitude normalised to [-1, 1].
type Sample = float32

// Error kinds shared by the capture and analysis side.
var (
	// ErrInvalidArgument reports a parameter that violates a construction or
	// call contract. It never arises from well-formed runtime traffic.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientData is returned by ReadNewSamples when fewer new samples
	// are buffered than requested. Callers simply wait for more audio.
	ErrInsufficientData = errors.New("insufficient data")
)

// StreamParameters describes an open capture stream. It is immutable once the
// source is opened and is shared by value.
type StreamParameters struct {
	SampleRate uint32
	Channels   uint16
}

// Validate checks that the stream can be analysed.
func (p StreamParameters) Validate() error {
	if p.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidArgument)
	}
	if p.Channels == 0 {
		return fmt.Errorf("%w: channel count must be at least 1", ErrInvalidArgument)
	}
	return nil
}

// SamplesFor converts a duration into a per-channel sample count, rounded to
// the nearest sample.
func (p StreamParameters) SamplesFor(d time.Duration) int {
	return int(math.Round(float64(p.SampleRate) * d.Seconds()))
}

// String implements fmt.Stringer.
func (p StreamParameters) String() string {
	return fmt.Sprintf("StreamParameters [sample_rate: %d, channels: %d]", p.SampleRate, p.Channels)
}

// PerChannel is an ordered sequence indexed by channel id. Its length always
// equals the stream's channel count.
type PerChannel[T any] []T

// Channel returns the value for channel ch.
func (p PerChannel[T]) Channel(ch int) T {
	return p[ch]
}

// Channels returns the number of channels.
func (p PerChannel[T]) Channels() int {
	return len(p)
}
