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

	"github.com/MarLuar/Mirror/internal/config"
	"github.com/MarLuar/Mirror/internal/metrics"
	"github.com/MarLuar/Mirror/internal/recorder"
	"github.com/MarLuar/Mirror/internal/server"
	"github.com/MarLuar/Mirror/internal/stream"
	"github.com/MarLuar/Mirror/internal/stt"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "mirror"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.String("recordings_dir", cfg.Recorder.Dir),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// The recordings directory must exist before the first capture lands.
	if err := os.MkdirAll(cfg.Recorder.Dir, 0o755); err != nil {
		logger.Error("Failed to create recordings directory",
			slog.String("dir", cfg.Recorder.Dir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Create stream manager configuration
	streamConfig := stream.ManagerConfig{
		RecorderConfig: recorder.Config{
			Dir:           cfg.Recorder.Dir,
			SampleRate:    cfg.Audio.SampleRate,
			BitsPerSample: cfg.Audio.BitDepth,
			Channels:      cfg.Audio.Channels,
			MaxDuration:   cfg.Recorder.GetMaxDuration(),
			MinDataBytes:  uint32(cfg.Recorder.MinDataBytes),
		},
		TranscriptionConfig: stt.Config{
			Endpoint:       cfg.Transcription.Endpoint,
			APIKey:         cfg.Transcription.APIKey,
			ModelID:        cfg.Transcription.ModelID,
			Timeout:        cfg.Transcription.GetTimeoutDuration(),
			MaxRetries:     cfg.Transcription.MaxRetries,
			MaxConcurrent:  cfg.Transcription.MaxConcurrent,
			MaxUploadBytes: cfg.Transcription.MaxUploadBytes,
		},
		Timeout: cfg.Server.GetStreamTimeoutDuration(),
	}

	// Initialize stream manager
	streamMgr, err := stream.NewManager(logger, appMetrics, streamConfig)
	if err != nil {
		logger.Error("Failed to create stream manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Stream manager initialized",
		slog.Duration("stream_timeout", cfg.Server.GetStreamTimeoutDuration()),
		slog.String("transcription_endpoint", streamConfig.TranscriptionConfig.Endpoint),
	)

	// Initialize UDP server
	udpServer := server.NewUDPServer(&cfg.Server, logger, appMetrics, streamMgr)
	logger.Info("UDP server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, udpServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start UDP server
	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server (stop accepting new datagrams)
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	// Stop stream manager (finalize open streams, drain uploads)
	streamMgr.Stop()

	// Get final statistics
	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_processed", stats.DatagramsProcessed),
		slog.Uint64("receive_errors", stats.ReceiveErrors),
		slog.Uint64("active_streams", stats.ActiveStreams),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
