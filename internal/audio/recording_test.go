// SPDX-License-Identifier: MIT
package audio

import (
	"path/filepath"
	"testing"
	"time"

	"spectrum/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 48000
	testFrameSize  = 256
)

func TestRecorderWritesEveryBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capture.wav")
	params := StreamParameters{SampleRate: testSampleRate, Channels: 2}

	rec, err := NewRecorder(path, params, 16, testFrameSize)
	require.NoError(t, err)
	assert.Equal(t, RecorderName, rec.Name())
	assert.True(t, rec.IsAlive())

	left := utils.GenerateSineWave(1000, testSampleRate, 440)
	right := utils.GenerateConstant(1000, -0.5)
	rec.AudioBuffer().Store(utils.Interleave(left, right))

	assert.Equal(t, 1000/testFrameSize, rec.ProcessNewSamples())
	assert.Equal(t, int64(768), rec.Written())

	require.NoError(t, rec.Close())
	assert.False(t, rec.IsAlive())
	assert.Equal(t, int64(1000), rec.Written())
	assert.NoError(t, rec.Close())

	// Replay the file and compare with what went in.
	src, err := NewWAVSource(path, 100, false)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, params, src.Parameters())

	var got []Sample
	require.NoError(t, src.Start(func(block []Sample) {
		got = append(got, block...)
	}))
	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}

	require.Len(t, got, 2000)
	for i := range 1000 {
		require.InDelta(t, left[i], got[2*i], 1.0/16384, "left %d", i)
		require.InDelta(t, -0.5, got[2*i+1], 1.0/16384, "right %d", i)
	}
}

func TestRecorderRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	params := StreamParameters{SampleRate: testSampleRate, Channels: 1}

	_, err := NewRecorder(filepath.Join(dir, "a.wav"), params, 12, testFrameSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRecorder(filepath.Join(dir, "b.wav"), params, 16, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRecorder(filepath.Join(dir, "c.wav"), StreamParameters{}, 16, testFrameSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRecorderDrivenByStreamer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamed.wav")
	params := StreamParameters{SampleRate: testSampleRate, Channels: 1}

	rec, err := NewRecorder(path, params, 24, testFrameSize)
	require.NoError(t, err)

	s := NewStreamer(params)
	s.SetPollInterval(time.Millisecond)
	s.AddConsumer(rec)
	s.Start(t.Context())

	for range 8 {
		s.Deliver(utils.GenerateComplexWave(testFrameSize, testSampleRate))
	}
	assert.Eventually(t, func() bool { return rec.Written() == 8*testFrameSize }, time.Second, time.Millisecond)

	require.NoError(t, rec.Close())
	s.Stop()
}

func TestWAVSourceRealtimePacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	params := StreamParameters{SampleRate: 8000, Channels: 1}

	rec, err := NewRecorder(path, params, 16, 400)
	require.NoError(t, err)
	rec.AudioBuffer().Store(utils.GenerateSineWave(1600, 8000, 100))
	rec.ProcessNewSamples()
	require.NoError(t, rec.Close())

	src, err := NewWAVSource(path, 400, true)
	require.NoError(t, err)
	defer src.Close()

	blocks := 0
	start := time.Now()
	require.NoError(t, src.Start(func([]Sample) { blocks++ }))
	<-src.Done()

	// Four 50 ms blocks, paced after each one.
	assert.Equal(t, 4, blocks)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestNewWAVSourceRejectsGarbage(t *testing.T) {
	_, err := NewWAVSource(filepath.Join(t.TempDir(), "missing.wav"), 256, false)
	assert.Error(t, err)

	_, err = NewWAVSource("recording_test.go", 256, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewWAVSource("recording_test.go", 0, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
