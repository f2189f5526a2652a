// SPDX-License-Identifier: MIT

// Package effects holds spectrum receivers that turn analyzer frames into
// events and control values for visualisers.
package effects

import (
	"math"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
)

// FrequencyBand is a named frequency range. HighHz <= 0 means up to Nyquist.
type FrequencyBand struct {
	Name   string  `yaml:"name"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// DefaultBands splits the audible range the way most light controllers do.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000},
}

// binRange is the half-open bin interval [lo, hi) covered by a band.
type binRange struct {
	lo, hi int
}

// bandBins maps a band onto spectrum bins. Bin k sits at k*fs/W Hz and belongs
// to the band when LowHz <= f < HighHz.
func bandBins(params analysis.AnalyzerParameters, band FrequencyBand) binRange {
	bins := params.Bins()
	res := params.BinResolution()
	lo := int(math.Ceil(band.LowHz / res))
	hi := bins
	if band.HighHz > 0 {
		hi = int(math.Ceil(band.HighHz / res))
	}
	lo = min(max(lo, 0), bins)
	hi = min(max(hi, lo), bins)
	return binRange{lo: lo, hi: hi}
}

// rmsMagnitude is the root mean square of the magnitudes in r, taken from
// channel 0 or, when mix is set, from the mean power over all channels.
func rmsMagnitude(spectra audio.PerChannel[analysis.Spectrum], r binRange, mix bool) float64 {
	if len(spectra) == 0 || r.hi <= r.lo {
		return 0
	}
	channels := spectra[:1]
	if mix {
		channels = spectra
	}

	var sum float64
	for _, s := range channels {
		for _, m := range s[r.lo:r.hi] {
			sum += float64(m) * float64(m)
		}
	}
	return math.Sqrt(sum / float64((r.hi-r.lo)*len(channels)))
}
