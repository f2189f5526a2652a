// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"os"
	"strings"
	"testing"

	applog "spectrum/internal/log"
	"spectrum/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingBufferRejectsBadShape(t *testing.T) {
	_, err := NewRingBuffer(0, 16)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRingBuffer(2, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	b, err := NewRingBufferFor(StreamParameters{SampleRate: 48000, Channels: 2}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 24000, b.Capacity())
	assert.Equal(t, 2, b.Channels())
}

func TestStoreConservesNewSamples(t *testing.T) {
	b, err := NewRingBuffer(2, 100)
	require.NoError(t, err)

	total := 0
	for _, frames := range []int{10, 0, 25, 30} {
		overrun := b.Store(make([]Sample, frames*2))
		assert.Zero(t, overrun)
		total += frames
		assert.Equal(t, total, b.NewSamples())
	}

	// 65 + 50 = 115 clamps to the capacity.
	assert.Equal(t, 15, b.Store(make([]Sample, 100)))
	assert.Equal(t, 100, b.NewSamples())
	assert.Equal(t, uint64(15), b.Overruns())
}

func TestStoreDemultiplexes(t *testing.T) {
	b, err := NewRingBuffer(2, 4)
	require.NoError(t, err)

	b.Store(utils.Interleave([]float32{1, 2}, []float32{-1, -2}))

	assert.Equal(t, []Sample{0, 0, 1, 2}, b.Snapshot(0))
	assert.Equal(t, []Sample{0, 0, -1, -2}, b.Snapshot(1))
}

func TestStoreDropsPartialFrame(t *testing.T) {
	b, err := NewRingBuffer(2, 4)
	require.NoError(t, err)

	assert.Zero(t, b.Store([]Sample{1, -1, 2}))
	assert.Equal(t, 1, b.NewSamples())
	assert.Zero(t, b.Store([]Sample{5}))
	assert.Equal(t, 1, b.NewSamples())

	// Later blocks stay aligned across channels.
	b.Store([]Sample{3, -3})
	assert.Equal(t, []Sample{0, 0, 1, 3}, b.Snapshot(0))
	assert.Equal(t, []Sample{0, 0, -1, -3}, b.Snapshot(1))
}

func TestStoreBlockLargerThanCapacityKeepsNewest(t *testing.T) {
	b, err := NewRingBuffer(1, 4)
	require.NoError(t, err)

	overrun := b.Store(utils.GenerateRamp(10))
	assert.Equal(t, 6, overrun)
	assert.Equal(t, []Sample{6, 7, 8, 9}, b.Snapshot(0))
	assert.Equal(t, 4, b.NewSamples())
}

func TestReadAdvancesByNew(t *testing.T) {
	b, err := NewRingBuffer(1, 64)
	require.NoError(t, err)

	b.Store(utils.GenerateRamp(40))

	before := b.NewSamples()
	frame, err := b.ReadNewSamples(10, 16)
	require.NoError(t, err)
	require.Len(t, frame, 1)
	require.Len(t, frame[0], 16)
	assert.Equal(t, before-10, b.NewSamples())

	// The frame ends at the newest sample it consumed (ramp value 9); the
	// six older positions are still the zero fill.
	assert.Equal(t, []Sample{0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, frame[0])
}

func TestConsecutiveReadsOverlap(t *testing.T) {
	const (
		nNew   = 4
		nTotal = 10
	)
	b, err := NewRingBuffer(1, 32)
	require.NoError(t, err)
	b.Store(utils.GenerateRamp(32))

	// Consume the first ten so later frames lie entirely inside the ramp.
	_, err = b.ReadNewSamples(nTotal, nTotal)
	require.NoError(t, err)

	first, err := b.ReadNewSamples(nNew, nTotal)
	require.NoError(t, err)
	second, err := b.ReadNewSamples(nNew, nTotal)
	require.NoError(t, err)

	assert.Equal(t, Sample(4), first[0][0])
	assert.Equal(t, first[0][nNew:], second[0][:nTotal-nNew])
	for i := 1; i < nTotal; i++ {
		assert.Greater(t, second[0][i], second[0][i-1])
	}
}

func TestReadInsufficientData(t *testing.T) {
	b, err := NewRingBuffer(1, 32)
	require.NoError(t, err)
	b.Store(make([]Sample, 3))

	_, err = b.ReadNewSamples(4, 8)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, 3, b.NewSamples())
}

func TestReadInvalidArguments(t *testing.T) {
	b, err := NewRingBuffer(2, 32)
	require.NoError(t, err)
	b.Store(make([]Sample, 64))

	tests := []struct {
		name         string
		nNew, nTotal int
	}{
		{"zero new", 0, 8},
		{"new above total", 9, 8},
		{"total above capacity", 4, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.ReadNewSamples(tt.nNew, tt.nTotal)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	err = b.ReadNewSamplesInto(PerChannel[[]Sample]{make([]Sample, 8)}, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = b.ReadNewSamplesInto(PerChannel[[]Sample]{make([]Sample, 8), make([]Sample, 7)}, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 32, b.NewSamples())
}

func TestOverrunKeepsBufferUsable(t *testing.T) {
	b, err := NewRingBuffer(1, 48000)
	require.NoError(t, err)

	overrun := b.Store(utils.GenerateConstant(96000, 1))
	assert.Equal(t, 48000, overrun)
	assert.Equal(t, 48000, b.NewSamples())
	assert.Equal(t, uint64(48000), b.Overruns())

	frame, err := b.ReadNewSamples(480, 1024)
	require.NoError(t, err)
	for _, v := range frame[0][1024-480:] {
		assert.Equal(t, Sample(1), v)
	}
	assert.Equal(t, 48000-480, b.NewSamples())
}

func TestReadIntoDoesNotAllocate(t *testing.T) {
	b, err := NewRingBuffer(2, 4096)
	require.NoError(t, err)
	block := make([]Sample, 2*480)
	dst := PerChannel[[]Sample]{make([]Sample, 1024), make([]Sample, 1024)}

	allocs := testing.AllocsPerRun(100, func() {
		b.Store(block)
		_ = b.ReadNewSamplesInto(dst, 480)
	})
	assert.Zero(t, allocs)
}

func TestReset(t *testing.T) {
	b, err := NewRingBuffer(1, 8)
	require.NoError(t, err)
	b.Store(utils.GenerateConstant(8, 1))

	b.Reset()
	assert.Zero(t, b.NewSamples())
	assert.Equal(t, make([]Sample, 8), b.Snapshot(0))
}

func BenchmarkStore(b *testing.B) {
	rb, _ := NewRingBuffer(2, 48000)
	block := make([]Sample, 2*256)

	b.ReportAllocs()
	for b.Loop() {
		rb.Store(block)
	}
}

func TestSustainedOverrunWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := applog.GetLevel()
	applog.SetOutput(&buf)
	applog.SetLevel(applog.LevelWarn)
	t.Cleanup(func() {
		applog.SetOutput(os.Stderr)
		applog.SetLevel(prev)
	})

	b, err := NewRingBuffer(1, 480)
	require.NoError(t, err)
	for range 50 {
		b.Store(make([]Sample, 960))
	}

	assert.Equal(t, uint64(50*480), b.Overruns())
	assert.Equal(t, 1, strings.Count(buf.String(), "overrun by"), buf.String())
}
