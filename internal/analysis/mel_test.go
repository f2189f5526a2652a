// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHzMelRoundTrip(t *testing.T) {
	assert.InDelta(t, 0.0, HzToMel(0), 1e-12)
	assert.InDelta(t, 1000.0, HzToMel(1000), 0.5)

	for _, hz := range []float64{20, 440, 3000, 20000} {
		assert.InDelta(t, hz, MelToHz(HzToMel(hz)), 1e-6)
	}
}

func TestMelOfConstantSpectrum(t *testing.T) {
	bank, err := NewMelFilterBank(40, 1024, 48000)
	require.NoError(t, err)
	require.Equal(t, 40, bank.Len())

	spectrum := make(Spectrum, 512)
	for i := range spectrum {
		spectrum[i] = 0.5
	}

	out, err := bank.Apply(spectrum)
	require.NoError(t, err)
	require.Len(t, out, 40)
	for m, v := range out {
		assert.InDelta(t, 0.5, v, 1e-5, "filter %d", m)
	}
}

func TestMelFiltersSumToOneOrCollapse(t *testing.T) {
	// At 16 kHz the upper filters lie above Nyquist and collapse.
	for _, fs := range []float64{16000, 44100, 48000} {
		bank, err := NewMelFilterBank(40, 1024, fs)
		require.NoError(t, err)

		collapsed := 0
		for m := range bank.Len() {
			weights := bank.Weights(m)
			require.Len(t, weights, 512)

			var sum float64
			for _, w := range weights {
				require.GreaterOrEqual(t, w, float32(0))
				sum += float64(w)
			}
			if sum == 0 {
				collapsed++
				continue
			}
			assert.InDelta(t, 1.0, sum, 1e-5, "fs %.0f filter %d", fs, m)
		}
		if fs == 16000 {
			assert.Positive(t, collapsed)
		}
	}
}

func TestMelCenterFrequenciesIncrease(t *testing.T) {
	bank, err := NewMelFilterBank(40, 2048, 48000)
	require.NoError(t, err)

	centers := bank.CenterFrequencies()
	require.Len(t, centers, 40)
	for i := 1; i < len(centers); i++ {
		assert.Greater(t, centers[i], centers[i-1])
	}
	assert.Less(t, centers[len(centers)-1], MelMaxFrequency)
}

func TestMelRejectsBadArguments(t *testing.T) {
	_, err := NewMelFilterBank(0, 1024, 48000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewMelFilterBank(40, 1023, 48000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewMelFilterBank(40, 1024, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	bank, err := NewMelFilterBank(40, 1024, 48000)
	require.NoError(t, err)
	_, err = bank.Apply(make(Spectrum, 100))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, bank.ApplyInto(make([]float32, 3), make(Spectrum, 512)), ErrInvalidArgument)
	assert.Nil(t, bank.Weights(40))
}

func TestApplyIntoZeroAllocs(t *testing.T) {
	bank, err := NewMelFilterBank(40, 1024, 48000)
	require.NoError(t, err)
	spectrum := make(Spectrum, 512)
	dst := make([]float32, 40)

	allocs := testing.AllocsPerRun(100, func() {
		_ = bank.ApplyInto(dst, spectrum)
	})
	assert.Zero(t, allocs)
}
