package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarLuar/Mirror/internal/capture"
	"github.com/MarLuar/Mirror/internal/config"
	"github.com/MarLuar/Mirror/internal/device"
	"github.com/MarLuar/Mirror/internal/playback"
	"github.com/MarLuar/Mirror/internal/transport"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useTone := flag.Bool("tone", false, "Capture a synthetic tone instead of the microphone")
	noAudio := flag.Bool("no-audio", false, "Discard playback instead of rendering it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("Device endpoint starting",
		slog.String("capture_addr", cfg.Transport.CaptureAddr),
		slog.Int("playback_port", cfg.Transport.PlaybackPort),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Bool("tone", *useTone),
	)

	// Capture source.
	var dev capture.Device
	if *useTone {
		dev = &capture.ToneDevice{}
	} else {
		dev = capture.NewPortAudioDevice()
	}

	engine, err := capture.Open(dev, capture.Config{
		Format: capture.Format{
			SampleRate:    cfg.Audio.SampleRate,
			BitsPerSample: cfg.Audio.BitDepth,
			Channels:      cfg.Audio.Channels,
		},
		GainBits: uint(cfg.Audio.GainBits),
	}, logger)
	if err != nil {
		logger.Error("Failed to open capture engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	blockSamples := engine.BlockSamples(cfg.Audio.GetBlockDuration())

	// Capture flow: device to host.
	captureChannel, err := transport.Open(transport.Config{
		RemoteAddr:      cfg.Transport.CaptureAddr,
		MaxSendFailures: cfg.Transport.MaxSendFailures,
	}, logger)
	if err != nil {
		logger.Error("Failed to open capture channel", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer captureChannel.Close()

	// Playback flow: host to device.
	playbackChannel, err := transport.Open(transport.Config{
		LocalAddr:       fmt.Sprintf(":%d", cfg.Transport.PlaybackPort),
		MaxSendFailures: cfg.Transport.MaxSendFailures,
	}, logger)
	if err != nil {
		logger.Error("Failed to open playback channel", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer playbackChannel.Close()

	// Playback sink.
	var output playback.Output
	if *noAudio {
		output = discardOutput{}
	} else {
		playbackBlock := cfg.Playback.SampleRate * cfg.Playback.OutputChannels / 10
		output, err = playback.OpenPortAudioOutput(cfg.Playback.SampleRate, cfg.Playback.OutputChannels, playbackBlock)
		if err != nil {
			logger.Error("Failed to open playback output", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	defer output.Close()

	recon := playback.New(playback.Config{
		SourceChannels: cfg.Playback.SourceChannels,
		SilenceWindow:  cfg.Playback.GetSilenceWindow(),
		WriteTimeout:   cfg.Playback.GetWriteTimeout(),
		SampleRate:     cfg.Playback.SampleRate,
	}, output, logger)

	beat := transport.NewHeartbeat(captureChannel, cfg.Transport.GetHeartbeatInterval())

	loop := device.New(device.Config{
		BlockSamples: blockSamples,
	}, engine, transport.NewBlockSender(captureChannel, blockSamples), recon, playbackChannel, beat, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("Device loop failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Device endpoint stopped",
		slog.Uint64("blocks_forwarded", loop.BlocksForwarded()),
	)
}

// discardOutput drops playback audio, for headless hosts.
type discardOutput struct{}

func (discardOutput) Write(samples []int16, timeout time.Duration) error { return nil }
func (discardOutput) Flush() error                                       { return nil }
func (discardOutput) Channels() int                                      { return 1 }
func (discardOutput) Close() error                                       { return nil }
