// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"spectrum/internal/audio"
	applog "spectrum/internal/log"

	"github.com/google/uuid"
)

// ConsumerName is the name a StreamAnalyzer reports to the streamer.
const ConsumerName = "stream-analyzer"

// State is the analyzer lifecycle stage.
type State int32

const (
	StateIdle    State = iota // constructed, no frame processed yet
	StateRunning              // at least one frame processed
	StateKilled               // terminal
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StreamAnalyzer consumes a capture stream in overlapping frames of W samples,
// advancing R samples per frame. For each frame it computes a magnitude
// spectrum per channel, records it in the spectrogram, projects it onto the
// mel bank and hands the set to every registered receiver.
//
// Thread Safety:
//   - ProcessNewSamples runs on one goroutine at a time (procMu)
//   - Query methods take the state read lock and return copies
//   - The receiver list is snapshotted per frame; receivers run with no lock
//     held except procMu
type StreamAnalyzer struct {
	params AnalyzerParameters
	buffer *audio.RingBuffer

	// owned by the processing goroutine
	procMu sync.Mutex
	fft    *FFTAnalyzer
	mel    *MelFilterBank
	frame  audio.PerChannel[[]audio.Sample]

	mu          sync.RWMutex
	spectrogram *Spectrogram
	melBands    audio.PerChannel[[]float32]
	frames      uint64

	recvMu    sync.RWMutex
	receivers []registration

	alive            atomic.Bool
	state            atomic.Int32
	receiverFailures atomic.Uint64
}

// NewStreamAnalyzer derives the analysis parameters from opts and allocates
// every buffer the drain loop needs.
func NewStreamAnalyzer(opts Options) (*StreamAnalyzer, error) {
	params, err := NewAnalyzerParameters(opts)
	if err != nil {
		return nil, err
	}

	buffer, err := audio.NewRingBuffer(params.Channels, params.BufferCapacity)
	if err != nil {
		return nil, err
	}

	fs := float64(params.SampleRate)
	fft, err := NewFFTAnalyzer(params.SpectrumWidth, fs, opts.Window)
	if err != nil {
		return nil, err
	}

	mel, err := NewMelFilterBank(params.MelFilters, params.SpectrumWidth, fs)
	if err != nil {
		return nil, err
	}

	spectrogram, err := NewSpectrogram(params.Channels, params.HistoryLength, params.Bins())
	if err != nil {
		return nil, err
	}

	frame := make(audio.PerChannel[[]audio.Sample], params.Channels)
	melBands := make(audio.PerChannel[[]float32], params.Channels)
	for ch := range params.Channels {
		frame[ch] = make([]audio.Sample, params.SpectrumWidth)
		melBands[ch] = make([]float32, params.MelFilters)
	}

	a := &StreamAnalyzer{
		params:      params,
		buffer:      buffer,
		fft:         fft,
		mel:         mel,
		frame:       frame,
		spectrogram: spectrogram,
		melBands:    melBands,
	}
	a.alive.Store(true)

	applog.Infof("StreamAnalyzer: W=%d R=%d H=%d (%.2f Hz/bin, %s refresh, %d mel filters, %d channels)",
		params.SpectrumWidth, params.RefreshSamples, params.HistoryLength,
		params.BinResolution(), params.RefreshPeriod, params.MelFilters, params.Channels)

	return a, nil
}

// Name implements audio.StreamConsumer.
func (a *StreamAnalyzer) Name() string { return ConsumerName }

// AudioBuffer implements audio.StreamConsumer.
func (a *StreamAnalyzer) AudioBuffer() *audio.RingBuffer { return a.buffer }

// IsAlive implements audio.StreamConsumer.
func (a *StreamAnalyzer) IsAlive() bool { return a.alive.Load() }

// Kill stops the analyzer. The current frame, if any, completes; no further
// frame is read.
func (a *StreamAnalyzer) Kill() {
	if a.alive.Swap(false) {
		a.state.Store(int32(StateKilled))
		applog.Infof("StreamAnalyzer: killed after %d frames", a.Frames())
	}
}

// State returns the lifecycle stage.
func (a *StreamAnalyzer) State() State { return State(a.state.Load()) }

// ReceiverFailures returns how many Receive calls failed or panicked.
func (a *StreamAnalyzer) ReceiverFailures() uint64 { return a.receiverFailures.Load() }

// ProcessNewSamples implements audio.StreamConsumer. It processes every
// complete frame currently buffered and returns how many it processed.
func (a *StreamAnalyzer) ProcessNewSamples() int {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	processed := 0
	for a.IsAlive() && a.buffer.NewSamples() >= a.params.RefreshSamples {
		if err := a.buffer.ReadNewSamplesInto(a.frame, a.params.RefreshSamples); err != nil {
			if errors.Is(err, ErrInsufficientData) {
				break
			}
			panic(fmt.Sprintf("stream analyzer: reading frame: %v", err))
		}
		a.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))

		spectra := a.analyzeFrame()
		a.dispatch(spectra)
		processed++
	}
	return processed
}

// analyzeFrame runs the FFT and mel projection for the buffered frame and
// publishes the results under the state lock.
func (a *StreamAnalyzer) analyzeFrame() audio.PerChannel[Spectrum] {
	spectra := make(audio.PerChannel[Spectrum], a.params.Channels)
	bands := make(audio.PerChannel[[]float32], a.params.Channels)

	for ch, samples := range a.frame {
		spectrum := make(Spectrum, a.params.Bins())
		if err := a.fft.AnalyzeInto(spectrum, samples); err != nil {
			panic(fmt.Sprintf("stream analyzer: channel %d: %v", ch, err))
		}
		spectra[ch] = spectrum

		bands[ch] = make([]float32, a.params.MelFilters)
		if err := a.mel.ApplyInto(bands[ch], spectrum); err != nil {
			panic(fmt.Sprintf("stream analyzer: channel %d mel: %v", ch, err))
		}
	}

	a.mu.Lock()
	if err := a.spectrogram.PushSpectrums(spectra); err != nil {
		a.mu.Unlock()
		panic(fmt.Sprintf("stream analyzer: %v", err))
	}
	a.melBands = bands
	a.frames++
	a.mu.Unlock()

	return spectra
}

func (a *StreamAnalyzer) dispatch(spectra audio.PerChannel[Spectrum]) {
	a.recvMu.RLock()
	receivers := slices.Clone(a.receivers)
	a.recvMu.RUnlock()

	for _, r := range receivers {
		if err := a.deliver(r.receiver, spectra); err != nil {
			a.receiverFailures.Add(1)
			applog.Errorf("StreamAnalyzer: receiver %s failed: %v", r.id, err)
		}
	}
}

func (a *StreamAnalyzer) deliver(r SpectrumReceiver, spectra audio.PerChannel[Spectrum]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Receive(spectra)
}

// RegisterReceiver adds r to the end of the delivery order. It takes effect
// from the next frame.
func (a *StreamAnalyzer) RegisterReceiver(r SpectrumReceiver) ReceiverID {
	id := ReceiverID(uuid.New())

	a.recvMu.Lock()
	a.receivers = append(a.receivers, registration{id: id, receiver: r})
	n := len(a.receivers)
	a.recvMu.Unlock()

	applog.Debugf("StreamAnalyzer: registered receiver %s (%d total)", id, n)
	return id
}

// RemoveReceiver unregisters id and reports whether it was present. The
// receiver gets no frame that starts after RemoveReceiver returns.
func (a *StreamAnalyzer) RemoveReceiver(id ReceiverID) bool {
	a.recvMu.Lock()
	defer a.recvMu.Unlock()

	i := slices.IndexFunc(a.receivers, func(r registration) bool { return r.id == id })
	if i < 0 {
		return false
	}
	a.receivers = slices.Delete(a.receivers, i, i+1)
	return true
}

// Receivers returns the number of registered receivers.
func (a *StreamAnalyzer) Receivers() int {
	a.recvMu.RLock()
	defer a.recvMu.RUnlock()
	return len(a.receivers)
}

// AnalyzerParameters implements Provider.
func (a *StreamAnalyzer) AnalyzerParameters() AnalyzerParameters { return a.params }

// LatestSpectrum implements Provider.
func (a *StreamAnalyzer) LatestSpectrum() audio.PerChannel[Spectrum] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.spectrogram.LatestSpectrum()
}

// LatestMelBands implements Provider.
func (a *StreamAnalyzer) LatestMelBands() audio.PerChannel[[]float32] {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(audio.PerChannel[[]float32], len(a.melBands))
	for ch, bands := range a.melBands {
		out[ch] = slices.Clone(bands)
	}
	return out
}

// SpectrogramForChannel implements Provider.
func (a *StreamAnalyzer) SpectrogramForChannel(ch int) ([]float32, uint32, uint32) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.spectrogram.SpectrogramForChannel(ch)
}

// Peaks returns channel ch's peak magnitude history, oldest first.
func (a *StreamAnalyzer) Peaks(ch int) []float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.spectrogram.Peaks(ch)
}

// RMS returns channel ch's spectral RMS history, oldest first.
func (a *StreamAnalyzer) RMS(ch int) []float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.spectrogram.RMS(ch)
}

// Frames implements Provider.
func (a *StreamAnalyzer) Frames() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frames
}

// MelCenterFrequencies returns the mel filter centres in Hz.
func (a *StreamAnalyzer) MelCenterFrequencies() []float64 {
	return a.mel.CenterFrequencies()
}

// Run drives the analyzer until ctx is cancelled or Kill is called, polling
// at half the refresh period.
func (a *StreamAnalyzer) Run(ctx context.Context) {
	audio.Drive(ctx, a, max(a.params.RefreshPeriod/2, audio.DefaultPollInterval/2))
}

var _ Provider = (*StreamAnalyzer)(nil)
var _ audio.StreamConsumer = (*StreamAnalyzer)(nil)
