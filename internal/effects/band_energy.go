// SPDX-License-Identifier: MIT
package effects

import (
	"fmt"
	"math"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	applog "spectrum/internal/log"
	"spectrum/internal/transport"
)

// DefaultBandGain scales band RMS magnitudes into roughly [0, 1].
const DefaultBandGain = 50.0

// BandEnergyConfig configures a BandEnergy receiver.
type BandEnergyConfig struct {
	Bands []FrequencyBand // defaults to DefaultBands
	Gain  float64         // defaults to DefaultBandGain
	Mix   bool            // average all channels instead of using channel 0
}

// BandEnergy reduces every frame to one clamped level per frequency band and
// sends it as a map:
//
//	{"type": "band_energy", "frame": 12, "sub": 0.1, "bass": 0.8, ...}
type BandEnergy struct {
	transport transport.Transport
	bands     []FrequencyBand
	ranges    []binRange
	gain      float64
	mix       bool
	frames    uint64
}

// NewBandEnergy creates a band energy receiver for spectra shaped by params.
func NewBandEnergy(params analysis.AnalyzerParameters, cfg BandEnergyConfig, t transport.Transport) (*BandEnergy, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: band energy needs a transport", audio.ErrInvalidArgument)
	}
	if params.Bins() == 0 {
		return nil, fmt.Errorf("%w: band energy needs a spectrum width", audio.ErrInvalidArgument)
	}
	bands := cfg.Bands
	if len(bands) == 0 {
		bands = DefaultBands
	}
	gain := cfg.Gain
	if gain <= 0 {
		gain = DefaultBandGain
	}

	ranges := make([]binRange, len(bands))
	for i, band := range bands {
		if band.Name == "" || band.Name == "type" || band.Name == "frame" {
			return nil, fmt.Errorf("%w: band %d has reserved or empty name %q", audio.ErrInvalidArgument, i, band.Name)
		}
		ranges[i] = bandBins(params, band)
		if ranges[i].lo == ranges[i].hi {
			applog.Warnf("BandEnergy: band %q (%.0f-%.0f Hz) covers no bins at %.1f Hz resolution",
				band.Name, band.LowHz, band.HighHz, params.BinResolution())
		}
	}

	applog.Infof("BandEnergy: Initializing with %d bands (gain %.1f, mix %t)", len(bands), gain, cfg.Mix)
	return &BandEnergy{
		transport: t,
		bands:     bands,
		ranges:    ranges,
		gain:      gain,
		mix:       cfg.Mix,
	}, nil
}

// Levels computes the clamped level of every band for one frame.
func (p *BandEnergy) Levels(spectra audio.PerChannel[analysis.Spectrum]) map[string]float64 {
	levels := make(map[string]float64, len(p.bands))
	for i, band := range p.bands {
		levels[band.Name] = math.Min(1.0, rmsMagnitude(spectra, p.ranges[i], p.mix)*p.gain)
	}
	return levels
}

// Receive implements analysis.SpectrumReceiver.
func (p *BandEnergy) Receive(spectra audio.PerChannel[analysis.Spectrum]) error {
	p.frames++
	data := map[string]any{"type": "band_energy", "frame": p.frames}
	for name, level := range p.Levels(spectra) {
		data[name] = level
	}
	if err := p.transport.Send(data); err != nil {
		return fmt.Errorf("sending band energy: %w", err)
	}
	return nil
}

var _ analysis.SpectrumReceiver = (*BandEnergy)(nil)
