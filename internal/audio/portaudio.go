// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	applog "spectrum/internal/log"

	"github.com/gordonklaus/portaudio"
)

// DefaultDevice selects the backend's default capture device.
const DefaultDevice = -1

// BackendPortAudio names the PortAudio capture backend.
const BackendPortAudio = "portaudio"

// Initialize sets up the PortAudio subsystem.
// This must be called before any PortAudio operation and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// CaptureConfig describes what a source should open.
type CaptureConfig struct {
	DeviceID        int // backend device index, DefaultDevice for the system default
	SampleRate      uint32
	Channels        uint16
	FramesPerBuffer int
	LowLatency      bool
}

// PortAudioSource captures interleaved float32 samples through PortAudio.
//
// Thread Safety:
//   - The device callback runs on PortAudio's thread and only calls deliver
//   - Start and Stop are serialised by mu
type PortAudioSource struct {
	cfg     CaptureConfig
	device  *portaudio.DeviceInfo
	latency time.Duration

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudioSource resolves the configured device. PortAudio must be
// initialised.
func NewPortAudioSource(cfg CaptureConfig) (*PortAudioSource, error) {
	params := StreamParameters{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrInvalidArgument, cfg.FramesPerBuffer)
	}

	device, err := portAudioInputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < int(cfg.Channels) {
		return nil, fmt.Errorf("%w: device %q has %d input channels, %d requested",
			ErrInvalidArgument, device.Name, device.MaxInputChannels, cfg.Channels)
	}

	s := &PortAudioSource{cfg: cfg, device: device}
	if cfg.LowLatency {
		s.latency = device.DefaultLowInputLatency
	} else {
		s.latency = device.DefaultHighInputLatency
	}
	return s, nil
}

// Parameters implements Source.
func (s *PortAudioSource) Parameters() StreamParameters {
	return StreamParameters{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
}

// Start implements Source.
func (s *PortAudioSource) Start(deliver func([]Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: int(s.cfg.Channels),
			Device:   s.device,
			Latency:  s.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      float64(s.cfg.SampleRate),
	}

	// The callback hands PortAudio's buffer straight to deliver; the ring
	// buffers copy it before returning.
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		deliver(in)
	})
	if err != nil {
		return fmt.Errorf("opening PortAudio stream on %q: %w", s.device.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("starting PortAudio stream on %q: %w", s.device.Name, err)
	}
	s.stream = stream

	applog.Infof("PortAudio: capturing from %q (%s, %d frames/buffer, latency %s)",
		s.device.Name, s.Parameters(), s.cfg.FramesPerBuffer, s.latency)
	return nil
}

// Stop implements Source.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	s.stream = nil
	return nil
}

// Close implements Source.
func (s *PortAudioSource) Close() error {
	return s.Stop()
}

// portAudioInputDevice retrieves the input device for the given index.
// DefaultDevice returns the system default input device.
func portAudioInputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDevice {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID: %d", ErrInvalidArgument, deviceID)
	}
	return devices[deviceID], nil
}

// PortAudioDevices lists every PortAudio device. PortAudio must be
// initialised.
func PortAudioDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			Backend:           BackendPortAudio,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefault:         info.Name == defaultName,
		}
	}
	return devices, nil
}
