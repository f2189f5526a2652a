// SPDX-License-Identifier: MIT
package audio

// StreamConsumer is anything that plugs into a capture stream. The capture
// side only ever writes into the consumer's RingBuffer; the consumer drains it
// from its own goroutine through ProcessNewSamples.
type StreamConsumer interface {
	// Name identifies the consumer in logs.
	Name() string

	// AudioBuffer returns the ring buffer the capture side writes into. The
	// consumer owns it; the capture side holds the handle for writing only.
	AudioBuffer() *RingBuffer

	// ProcessNewSamples drains whatever complete work is buffered and returns
	// the number of frames or blocks it handled. It must not block waiting for
	// audio.
	ProcessNewSamples() int

	// IsAlive reports whether the driver loop should keep calling
	// ProcessNewSamples.
	IsAlive() bool
}

// Source produces interleaved sample blocks from a device or file.
type Source interface {
	// Parameters returns the stream description. Valid once the source is open.
	Parameters() StreamParameters

	// Start begins delivering interleaved blocks to deliver. deliver is called
	// from the source's own goroutine or device thread.
	Start(deliver func([]Sample)) error

	// Stop halts delivery. A stopped source may be started again.
	Stop() error

	// Close releases the underlying device or file.
	Close() error
}

// Replayer is a Source that plays back recorded audio. Unless Realtime
// reports true it produces blocks faster than real time, and its deliver
// callback is allowed to block until consumers catch up.
type Replayer interface {
	Source
	Realtime() bool
}

// Device is a capture endpoint as reported by a backend.
type Device struct {
	ID                int
	Name              string
	Backend           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefault         bool
}

// Kind describes the direction of a device.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	case d.Backend == BackendMalgo:
		// miniaudio only enumerates capture devices here and does not report
		// channel counts without opening them.
		return "Input"
	default:
		return "Unknown"
	}
}
