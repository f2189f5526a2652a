// SPDX-License-Identifier: MIT

// Package engine wires a capture source, the stream analyzer and everything
// that consumes its output into one runnable unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/config"
	"spectrum/internal/effects"
	applog "spectrum/internal/log"
	"spectrum/internal/transport"
	"spectrum/internal/transport/udp"
)

// Stats summarises a run.
type Stats struct {
	Frames           uint64
	ReceiverFailures uint64
	Overruns         uint64 // samples per channel lost by the analyzer and the recorder
	Forwarded        uint64
	Beats            uint64
	Recorded         int64 // samples per channel written to the recording
	RecordingPath    string
}

// Engine owns the capture source and every consumer and receiver attached
// to it.
//
// The program flow is divided into three phases:
//  1. New opens the source and builds analyzer, recorder, transports and
//     effects. Nothing runs yet.
//  2. Start launches the consumer drivers and the publisher, then the source.
//  3. Stop halts the source first so the consumers can drain what was
//     captured, then stops everything else. Close releases all resources.
type Engine struct {
	cfg      *config.Config
	source   audio.Source
	streamer *audio.Streamer
	analyzer *analysis.StreamAnalyzer
	recorder *audio.Recorder

	out       transport.Multi
	logging   *transport.LoggingTransport
	websocket *transport.WebSocketTransport
	udpSender *udp.UDPSender
	publisher *udp.UDPPublisher

	forwarder  *effects.Forwarder
	bandEnergy *effects.BandEnergy
	beat       *effects.BeatDetector

	// Run in reverse order by Close, after the source is closed.
	cleanup []func() error

	mu      sync.Mutex
	running bool
	closed  bool
}

// New opens the source named by cfg.Audio.Backend and builds the engine
// around it.
func New(cfg *config.Config) (*Engine, error) {
	source, cleanup, err := OpenSource(cfg)
	if err != nil {
		return nil, err
	}
	e, err := NewWithSource(cfg, source)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}
	if cleanup != nil {
		e.cleanup = append(e.cleanup, cleanup)
	}
	return e, nil
}

// OpenSource opens the configured capture backend. The returned cleanup, if
// not nil, must run after the source is closed.
func OpenSource(cfg *config.Config) (audio.Source, func() error, error) {
	capture := audio.CaptureConfig{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}

	switch cfg.Audio.Backend {
	case config.BackendWAV:
		src, err := audio.NewWAVSource(cfg.Audio.WAVFile, cfg.Audio.FramesPerBuffer, cfg.Audio.Realtime)
		return src, nil, err

	case config.BackendMalgo:
		src, err := audio.NewMalgoSource(capture, cfg.Audio.Loopback)
		return src, nil, err

	case config.BackendPortAudio:
		if err := audio.Initialize(); err != nil {
			return nil, nil, err
		}
		src, err := audio.NewPortAudioSource(capture)
		if err != nil {
			audio.Terminate()
			return nil, nil, err
		}
		return src, audio.Terminate, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown audio backend %q", audio.ErrInvalidArgument, cfg.Audio.Backend)
	}
}

// NewWithSource builds the engine around an already opened source and takes
// ownership of it.
func NewWithSource(cfg *config.Config, source audio.Source) (_ *Engine, err error) {
	e := &Engine{cfg: cfg, source: source}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	stream := source.Parameters()
	opts, err := cfg.AnalyzerOptions(stream)
	if err != nil {
		return nil, err
	}
	e.analyzer, err = analysis.NewStreamAnalyzer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating analyzer: %w", err)
	}
	params := e.analyzer.AnalyzerParameters()

	e.streamer = audio.NewStreamer(stream)
	e.streamer.SetPollInterval(max(params.RefreshPeriod/2, time.Millisecond))
	if r, ok := source.(audio.Replayer); ok && !r.Realtime() {
		e.streamer.SetBackpressure(true)
	}
	e.streamer.AddConsumer(e.analyzer)

	if cfg.Recording.Enabled {
		block := cfg.Recording.BlockSize
		if block <= 0 {
			block = params.RefreshSamples
		}
		e.recorder, err = audio.NewRecorder(RecordingPath(cfg.Recording.OutputDir, time.Now()), stream, cfg.Recording.BitDepth, block)
		if err != nil {
			return nil, fmt.Errorf("creating recorder: %w", err)
		}
		e.streamer.AddConsumer(e.recorder)
	}

	if err := e.buildTransports(); err != nil {
		return nil, err
	}
	if err := e.buildEffects(params); err != nil {
		return nil, err
	}

	applog.Infof("Engine: %s, W=%d, R=%d (%s), H=%d, %d mel bands, %d receivers",
		stream, params.SpectrumWidth, params.RefreshSamples, params.RefreshPeriod,
		params.HistoryLength, params.MelFilters, e.analyzer.Receivers())
	return e, nil
}

// RecordingPath names a recording after the time it started.
func RecordingPath(dir string, start time.Time) string {
	return filepath.Join(dir, "recording-"+start.UTC().Format("02-01-2006-150405")+".wav")
}

func (e *Engine) buildTransports() error {
	tc := e.cfg.Transport
	if tc.Log {
		e.logging = transport.NewLoggingTransport()
		e.out = append(e.out, e.logging)
	}
	if tc.WebSocket.Enabled {
		e.websocket = transport.NewWebSocketTransport(transport.WebSocketConfig{
			Addr:        tc.WebSocket.Addr,
			Path:        tc.WebSocket.Path,
			MinInterval: tc.WebSocket.MinInterval,
		})
		e.out = append(e.out, e.websocket)
	}

	if tc.UDP.Enabled {
		mode, err := udp.ParseMode(tc.UDP.Mode)
		if err != nil {
			return err
		}
		e.udpSender, err = udp.NewUDPSender(tc.UDP.TargetAddress)
		if err != nil {
			return err
		}
		e.publisher, err = udp.NewUDPPublisher(tc.UDP.SendInterval, mode, e.udpSender, e.analyzer)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildEffects(params analysis.AnalyzerParameters) error {
	ec := e.cfg.Effects
	wantsEffects := ec.Forward || ec.BandEnergy.Enabled || ec.Beat.Enabled
	if !wantsEffects {
		return nil
	}
	if len(e.out) == 0 {
		applog.Warnf("Engine: effects are enabled but no transport is; enable transport.log or transport.websocket")
		return nil
	}

	// gated wraps effect receivers so they only see frames above the gate.
	gated := func(r analysis.SpectrumReceiver) (analysis.SpectrumReceiver, error) {
		if ec.GateThreshold <= 0 {
			return r, nil
		}
		return effects.NewGate(ec.GateThreshold, r)
	}

	var err error
	if ec.Forward {
		if e.forwarder, err = effects.NewForwarder(e.out); err != nil {
			return err
		}
		e.analyzer.RegisterReceiver(e.forwarder)
	}

	if ec.BandEnergy.Enabled {
		e.bandEnergy, err = effects.NewBandEnergy(params, effects.BandEnergyConfig{
			Bands: ec.BandEnergy.Bands,
			Gain:  ec.BandEnergy.Gain,
			Mix:   ec.BandEnergy.Mix,
		}, e.out)
		if err != nil {
			return err
		}
		r, err := gated(e.bandEnergy)
		if err != nil {
			return err
		}
		e.analyzer.RegisterReceiver(r)
	}

	if ec.Beat.Enabled {
		e.beat, err = effects.NewBeatDetector(params, effects.BeatConfig{
			Threshold:      ec.Beat.Threshold,
			MinEnergyRatio: ec.Beat.MinEnergyRatio,
			Cooldown:       ec.Beat.Cooldown,
			Mix:            ec.Beat.Mix,
		}, e.out)
		if err != nil {
			return err
		}
		r, err := gated(e.beat)
		if err != nil {
			return err
		}
		e.analyzer.RegisterReceiver(r)
	}
	return nil
}

// Analyzer returns the stream analyzer, e.g. for a UI to poll.
func (e *Engine) Analyzer() *analysis.StreamAnalyzer { return e.analyzer }

// WebSocket returns the WebSocket transport, or nil when disabled.
func (e *Engine) WebSocket() *transport.WebSocketTransport { return e.websocket }

// Start launches the consumer drivers and the UDP publisher, then starts the
// source.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine is closed")
	}
	if e.running {
		return nil
	}

	e.streamer.Start(ctx)
	if e.publisher != nil {
		e.publisher.Start()
	}

	// CRITICAL: from here on the source calls Deliver from its own thread.
	if err := e.source.Start(e.streamer.Deliver); err != nil {
		e.streamer.Stop()
		if e.publisher != nil {
			e.publisher.Stop()
		}
		return fmt.Errorf("starting source: %w", err)
	}
	e.running = true
	applog.Infof("Engine: started with %d consumers", e.streamer.Consumers())
	return nil
}

// Done is closed when a finite source such as a WAV file runs out. It is nil,
// and so never ready, for live devices.
func (e *Engine) Done() <-chan struct{} {
	if finite, ok := e.source.(interface{ Done() <-chan struct{} }); ok {
		return finite.Done()
	}
	return nil
}

// Run starts the engine and blocks until ctx is done or the source runs out,
// then stops it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-e.Done():
		applog.Infof("Engine: source finished")
	}
	return e.Stop()
}

// Stop halts the source, lets every consumer drain what is left in its
// buffer, and stops the drivers and the publisher.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false

	var errs []error
	if err := e.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping source: %w", err))
	}
	e.streamer.Stop()

	// Drivers are gone; finish the last buffered frames on this goroutine.
	e.analyzer.ProcessNewSamples()
	if e.recorder != nil {
		e.recorder.ProcessNewSamples()
	}

	if e.publisher != nil {
		errs = append(errs, e.publisher.Stop())
	}
	applog.Infof("Engine: stopped after %d frames", e.analyzer.Frames())
	return errors.Join(errs...)
}

// Close stops the engine if needed and releases every resource. It is safe
// to call more than once.
func (e *Engine) Close() error {
	errs := []error{e.Stop()}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if e.analyzer != nil {
		e.analyzer.Kill()
	}
	if e.recorder != nil {
		errs = append(errs, e.recorder.Close())
		applog.Infof("Engine: recording saved to %s", e.recorder.Path())
	}
	if e.udpSender != nil {
		errs = append(errs, e.udpSender.Close())
	}
	errs = append(errs, e.out.Close())
	if e.source != nil {
		errs = append(errs, e.source.Close())
	}
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, e.cleanup[i]())
	}
	return errors.Join(errs...)
}

// Stats returns counters for the current run.
func (e *Engine) Stats() Stats {
	s := Stats{
		Frames:           e.analyzer.Frames(),
		ReceiverFailures: e.analyzer.ReceiverFailures(),
		Overruns:         e.analyzer.AudioBuffer().Overruns(),
	}
	if e.forwarder != nil {
		s.Forwarded = e.forwarder.Frames()
	}
	if e.beat != nil {
		s.Beats = e.beat.Beats()
	}
	if e.recorder != nil {
		s.Overruns += e.recorder.AudioBuffer().Overruns()
		s.Recorded = e.recorder.Written()
		s.RecordingPath = e.recorder.Path()
	}
	return s
}
