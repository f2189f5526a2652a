// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "spectrum/internal/log"
)

// overrunWarnInterval bounds how often a sustained overrun is logged.
const overrunWarnInterval = time.Second

// RingBuffer keeps the most recent capacity samples of every channel of a
// stream together with the number of samples that have not been read yet.
//
// Thread Safety:
//   - One writer (the capture callback) and one reader (the analysis loop)
//   - Every method takes the internal mutex, so writer and reader may run on
//     different goroutines
//   - Overruns never fail; the oldest samples are dropped and counted
type RingBuffer struct {
	mu sync.Mutex

	channels   int
	capacity   int
	samples    [][]Sample // per channel, always exactly capacity long
	newSamples int

	overruns atomic.Uint64 // total samples dropped before they were read

	lastWarn   time.Time
	unreported int // overrun samples since lastWarn
}

// NewRingBuffer allocates a zero-filled buffer holding capacity samples per
// channel.
func NewRingBuffer(channels, capacity int) (*RingBuffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: ring buffer needs at least one channel, got %d", ErrInvalidArgument, channels)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: ring buffer capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}

	samples := make([][]Sample, channels)
	for ch := range samples {
		samples[ch] = make([]Sample, capacity)
	}

	return &RingBuffer{
		channels: channels,
		capacity: capacity,
		samples:  samples,
	}, nil
}

// NewRingBufferFor sizes a buffer to hold seconds of the given stream.
func NewRingBufferFor(params StreamParameters, seconds float64) (*RingBuffer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	capacity := int(float64(params.SampleRate)*seconds + 0.5)
	return NewRingBuffer(int(params.Channels), capacity)
}

// Channels returns the number of channels held by the buffer.
func (b *RingBuffer) Channels() int {
	return b.channels
}

// Capacity returns the number of samples retained per channel.
func (b *RingBuffer) Capacity() int {
	return b.capacity
}

// Overruns returns the total number of per-channel samples that were evicted
// before a reader consumed them.
func (b *RingBuffer) Overruns() uint64 {
	return b.overruns.Load()
}

// Store demultiplexes an interleaved block into the channel histories. Sample
// i goes to channel i mod channels. A trailing partial frame is dropped so the
// channels stay aligned. The clamped excess is returned and logged as an
// overrun warning, at most once per overrunWarnInterval.
func (b *RingBuffer) Store(interleaved []Sample) int {
	perChannel := len(interleaved) / b.channels
	if perChannel == 0 {
		return 0
	}
	if rest := len(interleaved) % b.channels; rest != 0 {
		applog.Debugf("RingBuffer: dropping %d samples of a partial frame", rest)
		interleaved = interleaved[:perChannel*b.channels]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := 0; ch < b.channels; ch++ {
		b.storeChannel(ch, interleaved)
	}

	b.newSamples += perChannel
	if b.newSamples <= b.capacity {
		return 0
	}

	overrun := b.newSamples - b.capacity
	b.newSamples = b.capacity
	b.overruns.Add(uint64(overrun))

	b.unreported += overrun
	if now := time.Now(); now.Sub(b.lastWarn) >= overrunWarnInterval {
		applog.Warnf("RingBuffer: overrun by %d samples (capacity %d)", b.unreported, b.capacity)
		b.lastWarn, b.unreported = now, 0
	}
	return overrun
}

// storeChannel appends channel ch's samples of the interleaved block and keeps
// only the newest capacity samples. It shifts in place instead of growing the
// slice, so the hot path does not allocate.
func (b *RingBuffer) storeChannel(ch int, interleaved []Sample) {
	incoming := 0
	if ch < len(interleaved) {
		incoming = (len(interleaved) - ch + b.channels - 1) / b.channels
	}
	if incoming == 0 {
		return
	}

	dst := b.samples[ch]
	skip := 0
	if incoming > b.capacity {
		skip = incoming - b.capacity
		incoming = b.capacity
	}

	copy(dst, dst[incoming:])
	tail := dst[b.capacity-incoming:]
	for i, j := 0, ch+skip*b.channels; i < incoming; i, j = i+1, j+b.channels {
		tail[i] = interleaved[j]
	}
}

// NewSamples returns how many samples per channel have not been read yet.
func (b *RingBuffer) NewSamples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newSamples
}

// Room returns how many samples per channel can be stored before unread
// samples are evicted.
func (b *RingBuffer) Room() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity - b.newSamples
}

// ReadNewSamples returns nTotal samples per channel and marks nNew of them as
// consumed. The returned frame ends at the newest consumed sample, so two
// consecutive reads overlap by nTotal-nNew samples. Positions older than the
// retained history read as silence.
func (b *RingBuffer) ReadNewSamples(nNew, nTotal int) (PerChannel[[]Sample], error) {
	if nNew <= 0 || nNew > nTotal || nTotal > b.capacity {
		return nil, fmt.Errorf("%w: read of %d new within %d total samples from a buffer of %d",
			ErrInvalidArgument, nNew, nTotal, b.capacity)
	}

	out := make(PerChannel[[]Sample], b.channels)
	for ch := range out {
		out[ch] = make([]Sample, nTotal)
	}

	if err := b.ReadNewSamplesInto(out, nNew); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadNewSamplesInto is the allocation free form of ReadNewSamples. Every
// slice of dst must have the same length, which is used as nTotal.
func (b *RingBuffer) ReadNewSamplesInto(dst PerChannel[[]Sample], nNew int) error {
	if len(dst) != b.channels {
		return fmt.Errorf("%w: destination has %d channels, buffer has %d", ErrInvalidArgument, len(dst), b.channels)
	}
	nTotal := len(dst[0])
	if nNew <= 0 || nNew > nTotal || nTotal > b.capacity {
		return fmt.Errorf("%w: read of %d new within %d total samples from a buffer of %d",
			ErrInvalidArgument, nNew, nTotal, b.capacity)
	}
	for ch, frame := range dst {
		if len(frame) != nTotal {
			return fmt.Errorf("%w: destination channel %d has %d samples, want %d", ErrInvalidArgument, ch, len(frame), nTotal)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.newSamples < nNew {
		return fmt.Errorf("%w: %d new samples buffered, %d requested", ErrInsufficientData, b.newSamples, nNew)
	}

	end := b.capacity - b.newSamples + nNew
	start := end - nTotal
	pad := 0
	if start < 0 {
		pad = -start
		start = 0
	}

	for ch, frame := range dst {
		clear(frame[:pad])
		copy(frame[pad:], b.samples[ch][start:end])
	}

	b.newSamples -= nNew
	return nil
}

// Snapshot copies the full retained history of one channel, oldest first.
func (b *RingBuffer) Snapshot(ch int) []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, b.capacity)
	copy(out, b.samples[ch])
	return out
}

// Reset zeroes the history and forgets all unread samples.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.samples {
		clear(s)
	}
	b.newSamples = 0
}
