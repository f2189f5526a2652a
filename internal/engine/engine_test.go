// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spectrum/internal/audio"
	"spectrum/internal/config"
	"spectrum/internal/transport/udp"
	"spectrum/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 48000

// writeToneFile records half a second of a 1 kHz tone on the left channel and
// silence on the right.
func writeToneFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	params := audio.StreamParameters{SampleRate: testSampleRate, Channels: 2}

	rec, err := audio.NewRecorder(path, params, 16, 480)
	require.NoError(t, err)
	left := utils.GenerateSineWave(testSampleRate/2, testSampleRate, 1000)
	right := make([]float32, testSampleRate/2)
	rec.AudioBuffer().Store(utils.Interleave(left, right))
	require.NoError(t, rec.Close())
	return path
}

func wavConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Backend = config.BackendWAV
	cfg.Audio.WAVFile = path
	cfg.Audio.Realtime = false
	cfg.Audio.FramesPerBuffer = 480
	cfg.Analyzer.RefreshPeriod = 10 * time.Millisecond
	cfg.Analyzer.HistoryDuration = 2 * time.Second
	cfg.Analyzer.SpectrumWidth = 1024
	require.NoError(t, cfg.Validate())
	return &cfg
}

func runToCompletion(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, ctx.Err(), "source should finish before the timeout")
}

func TestEngineReplaysWAVFile(t *testing.T) {
	cfg := wavConfig(t, writeToneFile(t))
	cfg.Recording.Enabled = true
	cfg.Recording.OutputDir = t.TempDir()
	cfg.Transport.Log = true
	cfg.Effects.Forward = true
	cfg.Effects.BandEnergy.Enabled = true
	cfg.Effects.Beat.Enabled = true

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()
	assert.NotNil(t, e.Done(), "a file source is finite")

	runToCompletion(t, e)

	stats := e.Stats()
	assert.Equal(t, uint64(50), stats.Frames)
	assert.Equal(t, uint64(50), stats.Forwarded)
	assert.Zero(t, stats.ReceiverFailures)
	assert.Zero(t, stats.Overruns)
	assert.Equal(t, int64(testSampleRate/2), stats.Recorded)

	spectra := e.Analyzer().LatestSpectrum()
	bin, _ := spectra[0].Peak()
	assert.InDelta(t, 21, bin, 1)
	_, silent := spectra[1].Peak()
	assert.Zero(t, silent)

	// 50 forwarded frames, 50 band energy maps and any kick events.
	assert.Equal(t, 100+stats.Beats, e.logging.Sent())

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	src, err := audio.NewWAVSource(stats.RecordingPath, 1000, false)
	require.NoError(t, err)
	defer src.Close()
	var samples atomic.Int64
	require.NoError(t, src.Start(func(block []audio.Sample) { samples.Add(int64(len(block))) }))
	<-src.Done()
	assert.Equal(t, int64(testSampleRate), samples.Load())
}

// writeLongFile records seconds of a stereo tone pair, longer than any
// consumer buffer in these tests.
func writeLongFile(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "long.wav")
	params := audio.StreamParameters{SampleRate: testSampleRate, Channels: 2}

	rec, err := audio.NewRecorder(path, params, 16, 480)
	require.NoError(t, err)
	for range seconds {
		left := utils.GenerateSineWave(testSampleRate, testSampleRate, 440)
		right := utils.GenerateSineWave(testSampleRate, testSampleRate, 880)
		rec.AudioBuffer().Store(utils.Interleave(left, right))
		rec.ProcessNewSamples()
	}
	require.NoError(t, rec.Close())
	require.Equal(t, int64(seconds*testSampleRate), rec.Written())
	return path
}

func TestEngineReplaysLongFileWithoutOverruns(t *testing.T) {
	const seconds = 10
	cfg := wavConfig(t, writeLongFile(t, seconds))
	cfg.Recording.Enabled = true
	cfg.Recording.OutputDir = t.TempDir()

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	runToCompletion(t, e)

	stats := e.Stats()
	assert.Zero(t, stats.Overruns)
	assert.Equal(t, uint64(seconds*100), stats.Frames)
	assert.Equal(t, int64(seconds*testSampleRate), stats.Recorded)
}

func TestEngineGateBlocksEffects(t *testing.T) {
	cfg := wavConfig(t, writeToneFile(t))
	cfg.Transport.Log = true
	cfg.Effects.BandEnergy.Enabled = true
	cfg.Effects.GateThreshold = 10 // louder than anything full scale can produce

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	runToCompletion(t, e)
	assert.Equal(t, uint64(50), e.Stats().Frames)
	assert.Zero(t, e.logging.Sent())
}

func TestEngineBroadcastsOverWebSocket(t *testing.T) {
	cfg := wavConfig(t, writeToneFile(t))
	cfg.Transport.WebSocket.Enabled = true
	cfg.Transport.WebSocket.Addr = "" // served through httptest below
	cfg.Effects.Forward = true

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	srv := httptest.NewServer(e.WebSocket().Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return e.WebSocket().Clients() == 1 }, time.Second, time.Millisecond)

	runToCompletion(t, e)

	var frame struct {
		Type     string      `json:"type"`
		Frame    uint64      `json:"frame"`
		Spectrum [][]float32 `json:"spectrum"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "spectrum", frame.Type)
	assert.Equal(t, uint64(1), frame.Frame)
	require.Len(t, frame.Spectrum, 2)
	assert.Len(t, frame.Spectrum[0], 512)
}

// liveSource delivers a tone block every millisecond until stopped, like a
// device callback.
type liveSource struct {
	params audio.StreamParameters
	block  []audio.Sample

	mu       sync.Mutex
	stop     chan struct{}
	wg       sync.WaitGroup
	startErr error
	closed   bool
}

func newLiveSource() *liveSource {
	return &liveSource{
		params: audio.StreamParameters{SampleRate: testSampleRate, Channels: 1},
		block:  utils.GenerateSineWave(48, testSampleRate, 1000),
	}
}

func (s *liveSource) Parameters() audio.StreamParameters { return s.params }

func (s *liveSource) Start(deliver func([]audio.Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				deliver(s.block)
			}
		}
	}()
	return nil
}

func (s *liveSource) Stop() error {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *liveSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func liveConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Channels = 1
	cfg.Analyzer.RefreshPeriod = 10 * time.Millisecond
	cfg.Analyzer.HistoryDuration = time.Second
	cfg.Analyzer.SpectrumWidth = 1024
	return &cfg
}

func TestEngineLiveSourceLifecycle(t *testing.T) {
	src := newLiveSource()
	e, err := NewWithSource(liveConfig(), src)
	require.NoError(t, err)
	assert.Nil(t, e.Done(), "live sources never finish")

	require.NoError(t, e.Start(t.Context()))
	require.NoError(t, e.Start(t.Context()))
	assert.Eventually(t, func() bool { return e.Stats().Frames >= 5 }, 5*time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	frames := e.Stats().Frames
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frames, e.Stats().Frames, "nothing is analysed after Stop")
	assert.Zero(t, e.Analyzer().AudioBuffer().NewSamples() / e.Analyzer().AnalyzerParameters().RefreshSamples,
		"Stop drains every complete frame")

	require.NoError(t, e.Close())
	assert.True(t, src.closed)
	assert.False(t, e.Analyzer().IsAlive())
	assert.Error(t, e.Start(t.Context()))
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e, err := NewWithSource(liveConfig(), newLiveSource())
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.Stats().Frames)
}

func TestEngineStartFailure(t *testing.T) {
	src := newLiveSource()
	src.startErr = errors.New("device busy")
	e, err := NewWithSource(liveConfig(), src)
	require.NoError(t, err)
	defer e.Close()

	assert.ErrorIs(t, e.Start(t.Context()), src.startErr)
	assert.NoError(t, e.Stop())
}

func TestEnginePublishesUDP(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	cfg := liveConfig()
	cfg.Transport.UDP.Enabled = true
	cfg.Transport.UDP.TargetAddress = listener.LocalAddr().String()
	cfg.Transport.UDP.SendInterval = 5 * time.Millisecond
	cfg.Transport.UDP.Mode = "mel"

	e, err := NewWithSource(cfg, newLiveSource())
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Start(t.Context()))

	buf := make([]byte, udp.MaxPacketSize)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := listener.Read(buf)
	require.NoError(t, err)

	packet, err := udp.DecodePacket(buf[:n])
	require.NoError(t, err)
	require.Len(t, packet.Values, 1)
	assert.Len(t, packet.Values[0], 40)
}

func TestNewWithSourceClosesSourceOnError(t *testing.T) {
	cfg := liveConfig()
	cfg.Analyzer.SpectrumWidth = 1023
	src := newLiveSource()

	_, err := NewWithSource(cfg, src)
	assert.ErrorIs(t, err, audio.ErrInvalidArgument)
	assert.True(t, src.closed)
}

func TestOpenSource(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "jack"
	_, _, err := OpenSource(&cfg)
	assert.ErrorIs(t, err, audio.ErrInvalidArgument)

	cfg.Audio.Backend = config.BackendWAV
	cfg.Audio.WAVFile = filepath.Join(t.TempDir(), "missing.wav")
	_, _, err = OpenSource(&cfg)
	assert.Error(t, err)
}

func TestRecordingPath(t *testing.T) {
	start := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "recording-14-03-2025-150926.wav"), RecordingPath("out", start))
}
