// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"spectrum/internal/audio"
	"spectrum/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWidth      = 1024
	testSampleRate = 48000
)

func newTestFFT(t testing.TB) *FFTAnalyzer {
	t.Helper()
	f, err := NewFFTAnalyzer(testWidth, testSampleRate, Nuttall)
	require.NoError(t, err)
	return f
}

func TestNewFFTAnalyzerRejectsBadWidth(t *testing.T) {
	for _, width := range []int{0, 1, 3, 1023} {
		_, err := NewFFTAnalyzer(width, testSampleRate, Nuttall)
		assert.ErrorIs(t, err, ErrInvalidArgument, "width %d", width)
	}
}

func TestSpectrumShape(t *testing.T) {
	f := newTestFFT(t)

	inputs := map[string][]float32{
		"silence": make([]float32, testWidth),
		"dc":      utils.GenerateConstant(testWidth, 0.7),
		"complex": utils.GenerateComplexWave(testWidth, testSampleRate),
		"ramp":    utils.GenerateRamp(testWidth),
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			spectrum, err := f.Analyze(in)
			require.NoError(t, err)
			require.Len(t, spectrum, testWidth/2)
			assert.Equal(t, float32(0), spectrum[0])
			for k, v := range spectrum {
				require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "bin %d", k)
				require.GreaterOrEqual(t, v, float32(0), "bin %d", k)
			}
		})
	}
}

func TestAnalyzeRejectsWrongFrameLength(t *testing.T) {
	f := newTestFFT(t)

	_, err := f.Analyze(make([]audio.Sample, testWidth-1))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = f.AnalyzeInto(make(Spectrum, 10), make([]audio.Sample, testWidth))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBinAlignedSinePeak(t *testing.T) {
	f := newTestFFT(t)

	for _, bin := range []int{8, 64, 200, 400} {
		freq := f.FrequencyForBin(bin)
		spectrum, err := f.Analyze(utils.GenerateSineWave(testWidth, testSampleRate, freq))
		require.NoError(t, err)

		peak, magnitude := spectrum.Peak()
		require.Equal(t, bin, peak, "%.1f Hz", freq)

		// Amplitude 1 splits evenly between the positive and negative
		// frequency, and the window sum cancels the coherent gain.
		assert.InDelta(t, 0.5, magnitude, 0.01)

		// Outside the main lobe everything sits at least 40 dB down.
		limit := magnitude / 100
		for k, v := range spectrum {
			if k < bin-4 || k > bin+4 {
				require.Less(t, v, limit, "bin %d next to peak %d", k, bin)
			}
		}
	}
}

func TestFrequencyForBin(t *testing.T) {
	f := newTestFFT(t)
	assert.Equal(t, 0.0, f.FrequencyForBin(0))
	assert.InDelta(t, 3000.0, f.FrequencyForBin(64), 1e-9)
	assert.Equal(t, 0.0, f.FrequencyForBin(-1))
	assert.Equal(t, 0.0, f.FrequencyForBin(testWidth/2))
}

func TestAnalyzeIntoZeroAllocs(t *testing.T) {
	f := newTestFFT(t)
	frame := utils.GenerateComplexWave(testWidth, testSampleRate)
	dst := make(Spectrum, f.Bins())

	// Warm-up call so lazy initialisation inside gonum is not counted.
	require.NoError(t, f.AnalyzeInto(dst, frame))
	allocs := testing.AllocsPerRun(100, func() {
		_ = f.AnalyzeInto(dst, frame)
	})
	assert.Zero(t, allocs)
}

func BenchmarkAnalyzeInto(b *testing.B) {
	f := newTestFFT(b)
	frame := utils.GenerateComplexWave(testWidth, testSampleRate)
	dst := make(Spectrum, f.Bins())

	b.ReportAllocs()
	for b.Loop() {
		_ = f.AnalyzeInto(dst, frame)
	}
}
