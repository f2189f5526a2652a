// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		assert.NoError(t, Terminate())
	})
}

func TestPortAudioDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := PortAudioDevices()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("No audio devices found on system")
	}

	for i, d := range devices {
		assert.Equal(t, i, d.ID)
		assert.NotEmpty(t, d.Name, "device %d", i)
		assert.Equal(t, BackendPortAudio, d.Backend)
		assert.Positive(t, d.DefaultSampleRate, "device %d", i)
	}
}

func TestNewPortAudioSourceRejectsBadConfig(t *testing.T) {
	setupPortAudio(t)

	_, err := NewPortAudioSource(CaptureConfig{DeviceID: DefaultDevice, SampleRate: 48000, Channels: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPortAudioSource(CaptureConfig{DeviceID: 1 << 20, SampleRate: 48000, Channels: 1, FramesPerBuffer: 256})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPortAudioSource(CaptureConfig{DeviceID: DefaultDevice, SampleRate: 0, Channels: 1, FramesPerBuffer: 256})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeviceKind(t *testing.T) {
	tests := []struct {
		device Device
		want   string
	}{
		{Device{MaxInputChannels: 2, MaxOutputChannels: 2}, "Input/Output"},
		{Device{MaxInputChannels: 1}, "Input"},
		{Device{MaxOutputChannels: 2}, "Output"},
		{Device{Backend: BackendMalgo}, "Input"},
		{Device{Backend: BackendPortAudio}, "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.device.Kind())
	}
}
