// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeFloat32LE(t *testing.T) {
	want := []Sample{0, 0.5, -1, 0.25}
	raw := make([]byte, 4*len(want)+3) // trailing partial sample is ignored
	for i, v := range want {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	assert.Equal(t, want, DecodeFloat32LE(nil, raw))
	assert.Empty(t, DecodeFloat32LE(nil, raw[:3]))
}

func TestPCMConversion(t *testing.T) {
	assert.Equal(t, float32(32768), PCMScale(16))
	assert.Equal(t, float32(8388608), PCMScale(24))

	ints := SamplesToInt(nil, []Sample{0, 0.5, -1, 1, 2, -3}, 16)
	assert.Equal(t, []int{0, 16384, -32768, 32767, 32767, -32768}, ints)

	back := IntToSamples(nil, []int{0, 16384, -32768}, 16)
	assert.Equal(t, []Sample{0, 0.5, -1}, back)
}

func TestStreamParameters(t *testing.T) {
	p := StreamParameters{SampleRate: 48000, Channels: 2}
	assert.NoError(t, p.Validate())
	assert.Equal(t, 480, p.SamplesFor(10*time.Millisecond))
	assert.Equal(t, 1024, p.SamplesFor(time.Duration(1024)*time.Second/48000))
	assert.Contains(t, p.String(), "48000")

	assert.ErrorIs(t, StreamParameters{Channels: 1}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, StreamParameters{SampleRate: 48000}.Validate(), ErrInvalidArgument)

	pc := PerChannel[int]{3, 4}
	assert.Equal(t, 2, pc.Channels())
	assert.Equal(t, 4, pc.Channel(1))
}
