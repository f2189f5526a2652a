// SPDX-License-Identifier: MIT

// Package cmd implements the command line interface.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"spectrum/internal/audio"
	"spectrum/internal/build"
	"spectrum/internal/config"
	"spectrum/internal/engine"
	applog "spectrum/internal/log"
	"spectrum/internal/tui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Options collects flag values. A flag only overrides the configuration when
// it was given on the command line.
type Options struct {
	ConfigPath      string
	EnvFile         string
	LogLevel        string
	LogFile         string
	Backend         string
	DeviceID        int
	SampleRate      uint32
	Channels        uint16
	FramesPerBuffer int
	LowLatency      bool
	WAVFile         string
	Realtime        bool
	Record          bool
	OutputDir       string
	UDPTarget       string
	WebSocketAddr   string
	Verbose         bool
}

// deviceListers are the backends `list` and `tui` enumerate.
var deviceListers = []tui.DeviceLister{portAudioDevices, audio.MalgoDevices}

// portAudioDevices lists PortAudio devices inside its own
// Initialize/Terminate pair.
func portAudioDevices() ([]audio.Device, error) {
	if err := audio.Initialize(); err != nil {
		return nil, err
	}
	defer audio.Terminate()
	return audio.PortAudioDevices()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&Options{})
}

func newRootCommand(options *Options) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, options)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg, options.LogFile, cmd.ErrOrStderr()); err != nil {
				return err
			}
			return runEngine(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd.OutOrStdout(), deviceListers)
		},
	}
	rootCmd.AddCommand(listCmd)

	// TUI command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Pick a device and show a live mel band meter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, options)
			if err != nil {
				return err
			}
			// The terminal belongs to the UI; logs go to a file or nowhere.
			if err := setupLogging(cfg, options.LogFile, io.Discard); err != nil {
				return err
			}
			return runTUI(cmd, cfg)
		},
	}
	rootCmd.AddCommand(tuiCmd)

	flags := rootCmd.PersistentFlags()

	// Configuration sources
	flags.StringVar(&options.ConfigPath, "config", "",
		"Path to the YAML configuration file (default ./config.yaml if present)")
	flags.StringVar(&options.EnvFile, "env-file", ".env",
		"File with KEY=value environment overrides, skipped when missing")
	flags.StringVar(&options.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&options.LogFile, "log-file", "", "Write logs to this file instead of stderr")

	// Audio Device Configuration
	flags.StringVar(&options.Backend, "backend", config.DefaultBackend, "Capture backend: portaudio, malgo or wav")
	flags.IntVarP(&options.DeviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.Uint16VarP(&options.Channels, "channels", "c", config.DefaultChannels,
		"Number of channels to analyse (1=mono, 2=stereo)")
	flags.Uint32VarP(&options.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&options.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&options.LowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	flags.StringVar(&options.WAVFile, "wav", "", "Analyse this WAV file (implies --backend wav)")
	flags.BoolVar(&options.Realtime, "realtime", true, "Replay WAV files at their own sample rate")

	// Recording Configuration
	flags.BoolVarP(&options.Record, "record", "r", false,
		"Record the analysed stream to a WAV file")
	flags.StringVarP(&options.OutputDir, "output", "o", "",
		"Directory for recordings. Files are named recording-DD-MM-YYYY-HHMMSS.wav")

	// Transports
	flags.StringVar(&options.UDPTarget, "udp", "", "Send spectra to this host:port over UDP")
	flags.StringVar(&options.WebSocketAddr, "ws", "", "Serve effects and frames over WebSocket on this address")

	// Debug Configuration
	flags.BoolVarP(&options.Verbose, "verbose", "v", false, "Show verbose output")

	return rootCmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig reads .env, the YAML file and environment, then applies the
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command, opts *Options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if changed("verbose") {
		cfg.Debug = opts.Verbose
	}
	if changed("backend") {
		cfg.Audio.Backend = opts.Backend
	}
	if changed("device") {
		cfg.Audio.InputDevice = opts.DeviceID
	}
	if changed("channels") {
		cfg.Audio.Channels = opts.Channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = opts.SampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = opts.FramesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = opts.LowLatency
	}
	if changed("wav") {
		cfg.Audio.Backend = config.BackendWAV
		cfg.Audio.WAVFile = opts.WAVFile
	}
	if changed("realtime") {
		cfg.Audio.Realtime = opts.Realtime
	}
	if changed("record") {
		cfg.Recording.Enabled = opts.Record
	}
	if changed("output") {
		cfg.Recording.OutputDir = opts.OutputDir
	}
	if changed("udp") {
		cfg.Transport.UDP.Enabled = opts.UDPTarget != ""
		cfg.Transport.UDP.TargetAddress = opts.UDPTarget
	}
	if changed("ws") {
		cfg.Transport.WebSocket.Enabled = opts.WebSocketAddr != ""
		cfg.Transport.WebSocket.Addr = opts.WebSocketAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging applies the configured level and routes output to logFile
// when set, otherwise to fallback.
func setupLogging(cfg *config.Config, logFile string, fallback io.Writer) error {
	applog.SetLevel(cfg.Level())
	if logFile == "" {
		applog.SetOutput(fallback)
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	applog.SetOutput(f)
	return nil
}

// runEngine runs until the source ends or the process is interrupted, then
// prints a summary.
func runEngine(ctx context.Context, out io.Writer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Run(ctx); err != nil {
		return err
	}
	if err := e.Close(); err != nil {
		return err
	}
	printStats(out, e.Stats())
	return nil
}

// runTUI lets the user pick a device unless one was configured, then shows
// the meter while the engine runs.
func runTUI(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Audio.Backend != config.BackendWAV && !cmd.Flags().Changed("device") {
		sel, ok, err := tui.StartDeviceListUI(deviceListers...)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.Backend = sel.Device.Backend
		cfg.Audio.InputDevice = sel.Device.ID
		cfg.Audio.SampleRate = sel.SampleRate
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Start(ctx); err != nil {
		return err
	}
	analyzer := e.Analyzer()
	if err := tui.RunMeter(ctx, analyzer, 0, analyzer.MelCenterFrequencies()); err != nil {
		return err
	}
	if err := e.Close(); err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), e.Stats())
	return nil
}

var (
	headerColor  = color.New(color.FgGreen, color.Bold)
	defaultColor = color.New(color.FgCyan)
	errorColor   = color.New(color.FgRed)
	labelColor   = color.New(color.Faint)
)

// listDevices prints every backend's devices. A backend that fails is
// reported and skipped.
func listDevices(w io.Writer, listers []tui.DeviceLister) error {
	total := 0
	var lastErr error
	for _, list := range listers {
		devices, err := list()
		if err != nil {
			errorColor.Fprintf(w, "error: %v\n\n", err)
			lastErr = err
			continue
		}
		total += len(devices)
		if len(devices) == 0 {
			continue
		}

		headerColor.Fprintf(w, "%s devices\n", devices[0].Backend)
		for _, d := range devices {
			fmt.Fprintf(w, "  [%d] %s (%s)", d.ID, d.Name, d.Kind())
			if d.IsDefault {
				defaultColor.Fprint(w, " default")
			}
			fmt.Fprintln(w)
			if d.MaxInputChannels > 0 || d.DefaultSampleRate > 0 {
				labelColor.Fprintf(w, "      %d in, %d out, %.0f Hz\n",
					d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
			}
		}
		fmt.Fprintln(w)
	}

	if total == 0 && lastErr != nil {
		return fmt.Errorf("no audio backend available: %w", lastErr)
	}
	if total == 0 {
		fmt.Fprintln(w, "No audio devices found.")
	}
	return nil
}

func printStats(w io.Writer, s engine.Stats) {
	headerColor.Fprintln(w, "Analysis finished")
	fmt.Fprintf(w, "  frames:            %d\n", s.Frames)
	fmt.Fprintf(w, "  overruns:          %d samples\n", s.Overruns)
	fmt.Fprintf(w, "  receiver failures: %d\n", s.ReceiverFailures)
	if s.Forwarded > 0 {
		fmt.Fprintf(w, "  forwarded:         %d\n", s.Forwarded)
	}
	if s.Beats > 0 {
		fmt.Fprintf(w, "  kicks:             %d\n", s.Beats)
	}
	if s.RecordingPath != "" {
		fmt.Fprintf(w, "  recording:         %s (%d frames)\n", s.RecordingPath, s.Recorded)
	}
}
