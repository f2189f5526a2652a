// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"sync"
	"time"

	applog "spectrum/internal/log"
)

// DefaultPollInterval is how long a driver goroutine sleeps when its consumer
// had nothing to do.
const DefaultPollInterval = 2 * time.Millisecond

// Streamer connects one capture source to any number of consumers. The
// capture callback calls Deliver, which writes into every consumer's ring
// buffer; Start runs one driver goroutine per consumer that drains its buffer.
//
// Thread Safety:
//   - Deliver holds at most one consumer buffer lock at a time
//   - Deliver never calls into consumers, so receivers cannot stall capture
//   - Consumers added after Start are driven immediately
//   - With backpressure on, Deliver waits for the drivers instead of
//     overrunning; only sources that may block (file replay) enable it
type Streamer struct {
	params       StreamParameters
	poll         time.Duration
	backpressure bool

	mu        sync.RWMutex
	consumers []StreamConsumer
	buffers   []*RingBuffer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewStreamer creates a streamer for a source with the given parameters.
func NewStreamer(params StreamParameters) *Streamer {
	return &Streamer{
		params: params,
		poll:   DefaultPollInterval,
	}
}

// SetPollInterval changes the idle sleep of the driver goroutines. It must be
// called before Start.
func (s *Streamer) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// SetBackpressure makes Deliver wait, while the drivers run, until every live
// consumer's buffer has room for the block. It must be called before Start
// and never for a device callback.
func (s *Streamer) SetBackpressure(on bool) {
	s.backpressure = on
}

// Parameters returns the stream parameters shared by all consumers.
func (s *Streamer) Parameters() StreamParameters {
	return s.params
}

// AddConsumer registers a consumer's buffer for delivery.
func (s *Streamer) AddConsumer(c StreamConsumer) {
	applog.Infof("Streamer: adding consumer %q", c.Name())

	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.buffers = append(s.buffers, c.AudioBuffer())
	running := s.running
	ctx := s.ctx
	s.mu.Unlock()

	if running {
		s.spawn(ctx, c)
	}
}

// Consumers returns the number of registered consumers.
func (s *Streamer) Consumers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumers)
}

// Deliver stores an interleaved block into every consumer buffer. It is the
// body of the capture callback and never fails.
func (s *Streamer) Deliver(samples []Sample) {
	s.mu.RLock()
	consumers, buffers := s.consumers, s.buffers
	ctx, waiting := s.ctx, s.backpressure && s.running
	s.mu.RUnlock()

	for i, b := range buffers {
		if waiting {
			s.waitForRoom(ctx, consumers[i], b, len(samples)/b.Channels())
		}
		b.Store(samples)
	}
}

// waitForRoom blocks until b can take n more samples per channel without
// evicting unread ones, the consumer dies or ctx ends.
func (s *Streamer) waitForRoom(ctx context.Context, c StreamConsumer, b *RingBuffer, n int) {
	n = min(n, b.Capacity())
	if b.Room() >= n {
		return
	}

	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	for b.Room() < n && c.IsAlive() {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.poll)
		}
	}
}

// Start launches the driver goroutines. Calling Start twice is a no-op.
func (s *Streamer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	consumers := append([]StreamConsumer(nil), s.consumers...)
	runCtx := s.ctx
	s.mu.Unlock()

	for _, c := range consumers {
		s.spawn(runCtx, c)
	}
}

// Stop cancels the driver goroutines and waits for them to return.
func (s *Streamer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Streamer) spawn(ctx context.Context, c StreamConsumer) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		Drive(ctx, c, s.poll)
		applog.Debugf("Streamer: driver for %q exited", c.Name())
	}()
}

// Drive calls ProcessNewSamples until the consumer dies or ctx is cancelled,
// sleeping for poll whenever a call found no work.
func Drive(ctx context.Context, c StreamConsumer, poll time.Duration) {
	timer := time.NewTimer(poll)
	defer timer.Stop()

	for c.IsAlive() {
		if ctx.Err() != nil {
			return
		}
		if c.ProcessNewSamples() > 0 {
			continue
		}

		timer.Reset(poll)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
