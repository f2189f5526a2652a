// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	applog "spectrum/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a PCM WAV file as if it were a capture device, in blocks
// of FramesPerBuffer. With realtime set each block is paced to its duration;
// otherwise the file is pushed as fast as the consumers' buffers allow, which
// relies on deliver blocking while they are full (see Streamer.SetBackpressure).
type WAVSource struct {
	path     string
	block    int
	realtime bool

	file     *os.File
	decoder  *wav.Decoder
	params   StreamParameters
	bitDepth int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWAVSource opens path and reads its header.
func NewWAVSource(path string, framesPerBuffer int, realtime bool) (*WAVSource, error) {
	if framesPerBuffer < 1 {
		return nil, fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrInvalidArgument, framesPerBuffer)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrInvalidArgument, path)
	}

	params := StreamParameters{SampleRate: decoder.SampleRate, Channels: decoder.NumChans}
	if err := params.Validate(); err != nil {
		file.Close()
		return nil, err
	}

	return &WAVSource{
		path:     path,
		block:    framesPerBuffer,
		realtime: realtime,
		file:     file,
		decoder:  decoder,
		params:   params,
		bitDepth: int(decoder.BitDepth),
	}, nil
}

// Parameters implements Source.
func (s *WAVSource) Parameters() StreamParameters { return s.params }

// Realtime implements Replayer.
func (s *WAVSource) Realtime() bool { return s.realtime }

// Duration returns the file's playing time.
func (s *WAVSource) Duration() (time.Duration, error) {
	return s.decoder.Duration()
}

// Start implements Source. Delivery happens on a new goroutine; Done is
// closed when the file is exhausted or Stop is called.
func (s *WAVSource) Start(deliver func([]Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("wav source %s is closed", s.path)
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return nil
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.replay(deliver, s.stop, s.done)

	applog.Infof("WAVSource: replaying %s (%s, %d-bit)", s.path, s.params, s.bitDepth)
	return nil
}

func (s *WAVSource) replay(deliver func([]Sample), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	channels := int(s.params.Channels)
	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  int(s.params.SampleRate),
		},
		Data:           make([]int, s.block*channels),
		SourceBitDepth: s.bitDepth,
	}
	samples := make([]Sample, 0, s.block*channels)

	var ticker *time.Ticker
	if s.realtime {
		period := time.Duration(s.block) * time.Second / time.Duration(s.params.SampleRate)
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := s.decoder.PCMBuffer(pcm)
		if n > 0 {
			samples = IntToSamples(samples[:0], pcm.Data[:n], s.bitDepth)
			deliver(samples)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			applog.Errorf("WAVSource: decoding %s: %v", s.path, err)
			return
		}
		if n == 0 || err != nil {
			applog.Infof("WAVSource: reached end of %s", s.path)
			return
		}

		if ticker != nil {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}
}

// Done is closed when replay finishes. It returns nil before Start.
func (s *WAVSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop implements Source.
func (s *WAVSource) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Close implements Source.
func (s *WAVSource) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ Replayer = (*WAVSource)(nil)
