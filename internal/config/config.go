// SPDX-License-Identifier: MIT

// Package config loads the application configuration from YAML, an optional
// .env file and ENV_* environment overrides.
package config

import (
	"time"

	"spectrum/internal/effects"
)

// Core configuration constants that define the boundaries and defaults
// for the analysis engine.
const (
	// Capture backends.
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendWAV       = "wav"

	DefaultBackend         = BackendPortAudio
	DefaultDeviceID        = MinDeviceID // system default device
	DefaultSampleRate      = 48000
	DefaultChannels        = 2
	DefaultFramesPerBuffer = 512
	DefaultRefreshPeriod   = 10 * time.Millisecond
	DefaultHistory         = 10 * time.Second
	DefaultSpectrumWidth   = 4096
	DefaultWindow          = "nuttall"
	DefaultBitDepth        = 16

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxChannels     = 32
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces the debug log level.
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`  // Spectrum analysis settings.
	Recording RecordingConfig `yaml:"recording"` // WAV recording settings.
	Transport TransportConfig `yaml:"transport"` // Where results are sent.
	Effects   EffectsConfig   `yaml:"effects"`   // Receivers attached to the analyzer.
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	Backend         string `yaml:"backend"`           // "portaudio", "malgo" or "wav".
	InputDevice     int    `yaml:"input_device"`      // Device index for audio input (-1 for default).
	SampleRate      uint32 `yaml:"sample_rate"`       // Sample rate in Hz; ignored for wav, which uses the file's rate.
	Channels        uint16 `yaml:"channels"`          // Number of input channels to capture.
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // Frames per device callback.
	LowLatency      bool   `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	Loopback        bool   `yaml:"loopback"`          // malgo only: capture what the system plays.
	WAVFile         string `yaml:"wav_file"`          // wav only: file to replay.
	Realtime        bool   `yaml:"realtime"`          // wav only: pace the replay at the file's sample rate.
}

// AnalyzerConfig holds the StreamAnalyzer settings.
type AnalyzerConfig struct {
	RefreshPeriod       time.Duration `yaml:"refresh_period"`       // Time between spectra.
	HistoryDuration     time.Duration `yaml:"history_duration"`     // Spectrogram and ring buffer length.
	SpectrumWidth       int           `yaml:"spectrum_width"`       // Samples per FFT frame.
	FrequencyResolution float64       `yaml:"frequency_resolution"` // Hz per bin; when set, overrides spectrum_width.
	MelFilters          int           `yaml:"mel_filters"`          // Number of mel bands (0 for the default).
	Window              string        `yaml:"window"`               // Window function name.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable audio recording to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // 16, 24 or 32.
	BlockSize int    `yaml:"block_size"` // Frames written per block (0 for one refresh period).
}

// TransportConfig holds settings related to sending results over the network.
type TransportConfig struct {
	Log       bool            `yaml:"log"` // Log every payload at debug level.
	UDP       UDPConfig       `yaml:"udp"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// UDPConfig configures the periodic spectrum publisher.
type UDPConfig struct {
	Enabled       bool          `yaml:"enabled"`        // Enable sending spectra over UDP.
	TargetAddress string        `yaml:"target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	SendInterval  time.Duration `yaml:"send_interval"`  // Interval between packets (0 for the refresh period).
	Mode          string        `yaml:"mode"`           // "spectrum" or "mel".
}

// WebSocketConfig configures the JSON broadcast server.
type WebSocketConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`         // Listen address (e.g., ":8080").
	Path        string        `yaml:"path"`         // Endpoint path, "/ws" when empty.
	MinInterval time.Duration `yaml:"min_interval"` // Drop spectrum frames closer together than this; events always go out.
}

// EffectsConfig selects the receivers fed by the analyzer. Their output goes
// to every enabled transport.
type EffectsConfig struct {
	Forward       bool             `yaml:"forward"`        // Send every raw frame.
	GateThreshold float32          `yaml:"gate_threshold"` // Only pass frames louder than this to effects (0 disables).
	BandEnergy    BandEnergyConfig `yaml:"band_energy"`
	Beat          BeatConfig       `yaml:"beat"`
}

// BandEnergyConfig configures effects.BandEnergy.
type BandEnergyConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Gain    float64                 `yaml:"gain"`
	Mix     bool                    `yaml:"mix"`
	Bands   []effects.FrequencyBand `yaml:"bands"` // Defaults to sub, bass, lowMid, mid, highMid, treble.
}

// BeatConfig configures effects.BeatDetector.
type BeatConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Threshold      float64       `yaml:"threshold"`
	MinEnergyRatio float64       `yaml:"min_energy_ratio"`
	Cooldown       time.Duration `yaml:"cooldown"`
	Mix            bool          `yaml:"mix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			Channels:        DefaultChannels,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Loopback:        true,
			Realtime:        true,
		},
		Analyzer: AnalyzerConfig{
			RefreshPeriod:   DefaultRefreshPeriod,
			HistoryDuration: DefaultHistory,
			SpectrumWidth:   DefaultSpectrumWidth,
			Window:          DefaultWindow,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDP: UDPConfig{
				TargetAddress: "127.0.0.1:9090",
				SendInterval:  33 * time.Millisecond, // ~30Hz
				Mode:          "spectrum",
			},
			WebSocket: WebSocketConfig{
				Addr: ":8080",
				Path: "/ws",
			},
		},
		Effects: EffectsConfig{
			BandEnergy: BandEnergyConfig{
				Gain: effects.DefaultBandGain,
			},
			Beat: BeatConfig{
				Threshold:      effects.DefaultBeatConfig.Threshold,
				MinEnergyRatio: effects.DefaultBeatConfig.MinEnergyRatio,
				Cooldown:       effects.DefaultBeatConfig.Cooldown,
			},
		},
	}
}
