// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	applog "spectrum/internal/log"
	"spectrum/internal/transport/udp"
	"spectrum/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is looked up when LoadConfig is given no path.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files, ".env" when none are
// named, into the process environment. Missing files are skipped and
// variables already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
		applog.Debugf("configuration: Loaded environment from %s", f)
	}
	return nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel)
	}

	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendMalgo:
		if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
			return fmt.Errorf("audio.sample_rate %d outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
		}
		if a.Channels == 0 || a.Channels > MaxChannels {
			return fmt.Errorf("audio.channels %d outside [1, %d]", a.Channels, MaxChannels)
		}
		if a.InputDevice < MinDeviceID {
			return fmt.Errorf("audio.input_device %d must be >= %d", a.InputDevice, MinDeviceID)
		}
	case BackendWAV:
		if a.WAVFile == "" {
			return errors.New("audio.wav_file must be set for the wav backend")
		}
	default:
		return fmt.Errorf("audio.backend %q is not one of portaudio, malgo, wav", a.Backend)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}

	if _, err := analysis.ParseWindowFunc(c.Analyzer.Window); err != nil {
		return fmt.Errorf("analyzer.window: %w", err)
	}
	if c.Analyzer.FrequencyResolution < 0 {
		return fmt.Errorf("analyzer.frequency_resolution %.2f must be >= 0", c.Analyzer.FrequencyResolution)
	}
	// The wav backend only knows its stream after opening the file.
	if a.Backend != BackendWAV {
		stream := audio.StreamParameters{SampleRate: a.SampleRate, Channels: a.Channels}
		opts, err := c.AnalyzerOptions(stream)
		if err != nil {
			return err
		}
		if _, err := analysis.NewAnalyzerParameters(opts); err != nil {
			return fmt.Errorf("analyzer: %w", err)
		}
	}

	if r := c.Recording; r.Enabled {
		if r.OutputDir == "" {
			return errors.New("recording.output_dir must be set when recording is enabled")
		}
		switch r.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", r.BitDepth)
		}
	}

	if u := c.Transport.UDP; u.Enabled {
		if u.TargetAddress == "" {
			return errors.New("transport.udp.target_address must be set when UDP is enabled")
		}
		if !strings.Contains(u.TargetAddress, ":") {
			return fmt.Errorf("transport.udp.target_address '%s' appears invalid (missing port?)", u.TargetAddress)
		}
		if u.SendInterval < 0 {
			return errors.New("transport.udp.send_interval must not be negative")
		}
		if _, err := udp.ParseMode(u.Mode); err != nil {
			return fmt.Errorf("transport.udp.mode: %w", err)
		}
	}
	if ws := c.Transport.WebSocket; ws.Enabled && ws.Addr == "" {
		return errors.New("transport.websocket.addr must be set when the websocket is enabled")
	}

	if c.Effects.GateThreshold < 0 {
		return fmt.Errorf("effects.gate_threshold %f must be >= 0", c.Effects.GateThreshold)
	}
	return nil
}

// SpectrumWidth returns the FFT width for a stream at sampleRate. A
// frequency resolution takes precedence and is rounded up to the next power
// of two so the bins are at least that fine.
func (c *Config) SpectrumWidth(sampleRate uint32) int {
	res := c.Analyzer.FrequencyResolution
	if res <= 0 {
		return c.Analyzer.SpectrumWidth
	}
	return bitint.NextPowerOfTwo(int(math.Ceil(float64(sampleRate) / res)))
}

// AnalyzerOptions builds the StreamAnalyzer options for a stream.
func (c *Config) AnalyzerOptions(stream audio.StreamParameters) (analysis.Options, error) {
	window, err := analysis.ParseWindowFunc(c.Analyzer.Window)
	if err != nil {
		return analysis.Options{}, fmt.Errorf("analyzer.window: %w", err)
	}
	return analysis.Options{
		RefreshPeriod:   c.Analyzer.RefreshPeriod,
		HistoryDuration: c.Analyzer.HistoryDuration,
		SpectrumWidth:   c.SpectrumWidth(stream.SampleRate),
		MelFilters:      c.Analyzer.MelFilters,
		Window:          window,
		Stream:          stream,
	}, nil
}

// Level returns the configured level, forced to debug by Debug.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides lets ENV_* variables replace the most commonly tuned
// values without editing the file.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &cfg.Debug)
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)

	// ENV_AUDIO_{...}
	envString("ENV_AUDIO_BACKEND", &cfg.Audio.Backend)
	envInt("ENV_AUDIO_DEVICE", &cfg.Audio.InputDevice)
	envString("ENV_AUDIO_WAV_FILE", &cfg.Audio.WAVFile)
	if val, ok := os.LookupEnv("ENV_AUDIO_SAMPLE_RATE"); ok {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Audio.SampleRate = uint32(n)
			applog.Infof("configuration: Overriding audio.sample_rate from env: %d", n)
		}
	}

	// ENV_ANALYZER_{...}
	envDuration("ENV_ANALYZER_REFRESH_PERIOD", &cfg.Analyzer.RefreshPeriod)
	envInt("ENV_ANALYZER_SPECTRUM_WIDTH", &cfg.Analyzer.SpectrumWidth)

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDP.Enabled)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDP.TargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDP.SendInterval)

	// ENV_WS_{...}
	envBool("ENV_WS_ENABLED", &cfg.Transport.WebSocket.Enabled)
	envString("ENV_WS_ADDR", &cfg.Transport.WebSocket.Addr)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Infof("configuration: Overriding %s from env: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
			applog.Infof("configuration: Overriding %s from env: %v", key, b)
		} else {
			applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		}
	}
}

func envInt(key string, dst *int) {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
			applog.Infof("configuration: Overriding %s from env: %d", key, n)
		} else {
			applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
			applog.Infof("configuration: Overriding %s from env: %s", key, d)
		} else {
			applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		}
	}
}
