// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	applog "spectrum/internal/log"
	"spectrum/internal/transport"
)

// BeatConfig configures a BeatDetector.
type BeatConfig struct {
	Threshold      float64       // minimum low-band RMS magnitude
	MinEnergyRatio float64       // minimum rise over the previous frame
	Cooldown       time.Duration // minimum time between two kicks
	Band           FrequencyBand // defaults to 40-150 Hz
	Mix            bool          // average all channels instead of using channel 0
}

// DefaultBeatConfig is tuned for a kick drum near full scale.
var DefaultBeatConfig = BeatConfig{
	Threshold:      0.01,
	MinEnergyRatio: 1.5,
	Cooldown:       150 * time.Millisecond,
	Band:           FrequencyBand{Name: "kick", LowHz: 40, HighHz: 150},
}

// BeatDetector detects kick drum onsets from the rise of low-band energy
// between consecutive frames and sends {"type": "event", "name": "kick"}.
type BeatDetector struct {
	transport transport.Transport
	cfg       BeatConfig
	band      binRange

	// Cooldown counted in frames so detection does not depend on wall time.
	cooldownFrames uint64
	frame          uint64
	lastBeat       uint64
	lastEnergy     float64
	beats          atomic.Uint64
}

// NewBeatDetector creates a detector for spectra shaped by params.
func NewBeatDetector(params analysis.AnalyzerParameters, cfg BeatConfig, t transport.Transport) (*BeatDetector, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: beat detector needs a transport", audio.ErrInvalidArgument)
	}
	if cfg.Threshold < 0 || cfg.MinEnergyRatio < 1 {
		return nil, fmt.Errorf("%w: beat threshold %.3f must be >= 0 and ratio %.2f >= 1",
			audio.ErrInvalidArgument, cfg.Threshold, cfg.MinEnergyRatio)
	}
	if cfg.Band.LowHz == 0 && cfg.Band.HighHz == 0 {
		cfg.Band = DefaultBeatConfig.Band
	}

	band := bandBins(params, cfg.Band)
	if band.lo == band.hi {
		return nil, fmt.Errorf("%w: beat band %.0f-%.0f Hz covers no bins",
			audio.ErrInvalidArgument, cfg.Band.LowHz, cfg.Band.HighHz)
	}

	var cooldown uint64
	if cfg.Cooldown > 0 && params.RefreshPeriod > 0 {
		cooldown = uint64(math.Ceil(float64(cfg.Cooldown) / float64(params.RefreshPeriod)))
	}

	applog.Infof("Analysis: Initializing BeatDetector (Threshold: %.3f, MinRatio: %.2f, Cooldown: %d frames)",
		cfg.Threshold, cfg.MinEnergyRatio, cooldown)
	return &BeatDetector{
		transport:      t,
		cfg:            cfg,
		band:           band,
		cooldownFrames: cooldown,
	}, nil
}

// Beats returns how many kicks have been detected.
func (kd *BeatDetector) Beats() uint64 { return kd.beats.Load() }

// Receive implements analysis.SpectrumReceiver.
func (kd *BeatDetector) Receive(spectra audio.PerChannel[analysis.Spectrum]) error {
	kd.frame++
	energy := rmsMagnitude(spectra, kd.band, kd.cfg.Mix)
	defer func() { kd.lastEnergy = energy }()

	if energy <= kd.cfg.Threshold {
		return nil
	}
	if kd.lastEnergy != 0 && energy/kd.lastEnergy <= kd.cfg.MinEnergyRatio {
		return nil
	}
	if kd.beats.Load() > 0 && kd.frame-kd.lastBeat < kd.cooldownFrames {
		return nil
	}

	kd.beats.Add(1)
	kd.lastBeat = kd.frame
	event := map[string]any{
		"type":   "event",
		"name":   "kick",
		"energy": energy,
		"frame":  kd.frame,
	}
	if err := kd.transport.Send(event); err != nil {
		return fmt.Errorf("sending kick event: %w", err)
	}
	return nil
}

var _ analysis.SpectrumReceiver = (*BeatDetector)(nil)
