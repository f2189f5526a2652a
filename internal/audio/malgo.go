// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
	"sync"

	applog "spectrum/internal/log"

	"github.com/gen2brain/malgo"
)

// BackendMalgo names the miniaudio capture backend.
const BackendMalgo = "malgo"

// MalgoSource captures through miniaudio. In loopback mode it records what
// the system is playing, which is what a visualiser usually wants; otherwise
// it opens a capture device.
//
// Thread Safety:
//   - The data callback runs on miniaudio's thread and owns scratch
//   - Start, Stop and Close are serialised by mu
type MalgoSource struct {
	cfg      CaptureConfig
	loopback bool

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	deliver func([]Sample)
	scratch []Sample
}

// NewMalgoSource initialises a miniaudio context for the given configuration.
func NewMalgoSource(cfg CaptureConfig, loopback bool) (*MalgoSource, error) {
	params := StreamParameters{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		applog.Debugf("malgo: %s", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("initializing miniaudio context: %w", err)
	}

	return &MalgoSource{
		cfg:      cfg,
		loopback: loopback,
		ctx:      ctx,
		scratch:  make([]Sample, 0, max(cfg.FramesPerBuffer, 1)*int(cfg.Channels)),
	}, nil
}

// Parameters implements Source.
func (s *MalgoSource) Parameters() StreamParameters {
	return StreamParameters{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}
}

// Start implements Source.
func (s *MalgoSource) Start(deliver func([]Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return fmt.Errorf("malgo source is closed")
	}
	if s.device != nil {
		return nil
	}

	kind := malgo.Capture
	if s.loopback {
		kind = malgo.Loopback
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = s.cfg.SampleRate
	if s.cfg.FramesPerBuffer > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(s.cfg.FramesPerBuffer)
	}

	if s.cfg.DeviceID != DefaultDevice {
		infos, err := s.ctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("listing capture devices: %w", err)
		}
		if s.cfg.DeviceID < 0 || s.cfg.DeviceID >= len(infos) {
			return fmt.Errorf("%w: invalid device ID: %d", ErrInvalidArgument, s.cfg.DeviceID)
		}
		deviceConfig.Capture.DeviceID = infos[s.cfg.DeviceID].ID.Pointer()
	}

	s.deliver = deliver
	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.onData(input)
		},
	})
	if err != nil {
		return fmt.Errorf("initializing miniaudio device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting miniaudio device: %w", err)
	}
	s.device = device

	mode := "capture"
	if s.loopback {
		mode = "loopback"
	}
	applog.Infof("malgo: %s started (%s)", mode, s.Parameters())
	return nil
}

// onData converts one callback's worth of float32 bytes and delivers it.
func (s *MalgoSource) onData(input []byte) {
	if len(input) == 0 || s.deliver == nil {
		return
	}
	s.scratch = DecodeFloat32LE(s.scratch[:0], input)
	s.deliver(s.scratch)
}

// Stop implements Source.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}
	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	return err
}

// Close implements Source.
func (s *MalgoSource) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	return err
}

// MalgoDevices lists miniaudio capture devices.
func MalgoDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing miniaudio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:        i,
			Name:      info.Name(),
			Backend:   BackendMalgo,
			IsDefault: info.IsDefault != 0,
		}
	}
	return devices, nil
}
