// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	applog "spectrum/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RecorderName is the name a Recorder reports to the streamer.
const RecorderName = "wav-recorder"

// Recorder is a StreamConsumer that writes the stream to a PCM WAV file. It
// drains its buffer in non-overlapping blocks, so every sample is written
// exactly once unless the buffer overran.
type Recorder struct {
	params   StreamParameters
	buffer   *RingBuffer
	block    int
	bitDepth int
	path     string

	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	frame   PerChannel[[]Sample]
	scratch []Sample // interleaved block
	pcm     *goaudio.IntBuffer
	written int64

	alive atomic.Bool
}

// NewRecorder creates path (and its directory) and prepares a WAV encoder of
// the given bit depth. blockSize is the number of samples per channel written
// per encoder call.
func NewRecorder(path string, params StreamParameters, bitDepth, blockSize int) (*Recorder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidArgument, bitDepth)
	}
	if blockSize < 1 {
		return nil, fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidArgument, blockSize)
	}

	// One second of slack, or four blocks, whichever is larger.
	buffer, err := NewRingBuffer(int(params.Channels), max(int(params.SampleRate), 4*blockSize))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	channels := int(params.Channels)
	frame := make(PerChannel[[]Sample], channels)
	for ch := range frame {
		frame[ch] = make([]Sample, blockSize)
	}

	r := &Recorder{
		params:   params,
		buffer:   buffer,
		block:    blockSize,
		bitDepth: bitDepth,
		path:     path,
		file:     file,
		encoder:  wav.NewEncoder(file, int(params.SampleRate), bitDepth, channels, 1),
		frame:    frame,
		pcm: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: channels,
				SampleRate:  int(params.SampleRate),
			},
			Data:           make([]int, 0, blockSize*channels),
			SourceBitDepth: bitDepth,
		},
	}
	r.alive.Store(true)

	applog.Infof("Recorder: writing %s to %s (%d-bit)", params, path, bitDepth)
	return r, nil
}

// Name implements StreamConsumer.
func (r *Recorder) Name() string { return RecorderName }

// AudioBuffer implements StreamConsumer.
func (r *Recorder) AudioBuffer() *RingBuffer { return r.buffer }

// IsAlive implements StreamConsumer.
func (r *Recorder) IsAlive() bool { return r.alive.Load() }

// Path returns the output file path.
func (r *Recorder) Path() string { return r.path }

// Written returns how many samples per channel reached the encoder.
func (r *Recorder) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// ProcessNewSamples implements StreamConsumer. It writes every complete block
// and returns the number of blocks written.
func (r *Recorder) ProcessNewSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := 0
	for r.encoder != nil && r.buffer.NewSamples() >= r.block {
		if err := r.writeBlock(r.frame); err != nil {
			applog.Errorf("Recorder: %v", err)
			break
		}
		blocks++
	}
	return blocks
}

// writeBlock reads len(frame[0]) new samples into frame and encodes them.
func (r *Recorder) writeBlock(frame PerChannel[[]Sample]) error {
	n := len(frame[0])
	if err := r.buffer.ReadNewSamplesInto(frame, n); err != nil {
		return err
	}

	r.scratch = r.scratch[:0]
	for i := range n {
		for _, samples := range frame {
			r.scratch = append(r.scratch, samples[i])
		}
	}
	r.pcm.Data = SamplesToInt(r.pcm.Data[:0], r.scratch, r.bitDepth)

	if err := r.encoder.Write(r.pcm); err != nil {
		return fmt.Errorf("writing WAV block: %w", err)
	}
	r.written += int64(n)
	return nil
}

// Close writes whatever is still buffered, finalises the WAV header and
// closes the file. The recorder stops being alive.
func (r *Recorder) Close() error {
	r.alive.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}

	if rest := r.buffer.NewSamples(); rest > 0 {
		tail := make(PerChannel[[]Sample], r.params.Channels)
		for ch := range tail {
			tail[ch] = make([]Sample, rest)
		}
		if err := r.writeBlock(tail); err != nil {
			applog.Errorf("Recorder: flushing %d samples: %v", rest, err)
		}
	}

	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		r.encoder, r.file = nil, nil
		return err
	}
	r.encoder = nil

	if err := r.file.Close(); err != nil {
		r.file = nil
		return err
	}
	r.file = nil

	applog.Infof("Recorder: closed %s after %d samples per channel", r.path, r.written)
	return nil
}

var _ StreamConsumer = (*Recorder)(nil)
