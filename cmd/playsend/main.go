package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MarLuar/Mirror/internal/protocol"
	"github.com/MarLuar/Mirror/internal/transport"
	"github.com/MarLuar/Mirror/internal/wav"
)

// endRepeats is how many END tokens close the stream; UDP loss makes a
// single token unreliable and the receiver treats duplicates as no-ops.
const endRepeats = 5

func main() {
	file := flag.String("file", "", "WAV file to stream")
	addr := flag.String("addr", "192.168.1.50:1236", "Device playback address")
	chunkSize := flag.Int("chunk", 1024, "Datagram payload size in bytes")
	pace := flag.Duration("pace", 4*time.Millisecond, "Delay between datagrams")
	beepDelay := flag.Duration("beep-delay", 500*time.Millisecond, "Delay after the connectivity beep")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: playsend -file <recording.wav> [-addr host:port]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("Failed to read file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	info, err := wav.Inspect(data)
	if err != nil {
		logger.Error("Not a playable container", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pcm := data[wav.HeaderSize:]

	logger.Info("Streaming audio to device",
		slog.String("file", *file),
		slog.String("addr", *addr),
		slog.Uint64("sample_rate", uint64(info.SampleRate)),
		slog.Uint64("channels", uint64(info.Channels)),
		slog.Float64("duration_seconds", info.Duration),
		slog.Int("pcm_bytes", len(pcm)),
	)

	channel, err := transport.Open(transport.Config{RemoteAddr: *addr}, logger)
	if err != nil {
		logger.Error("Failed to open channel", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer channel.Close()

	// Probe first: the beep is audible confirmation the device is listening
	// before any audio is committed to the wire.
	if err := channel.Send(protocol.Control{Token: protocol.TokenBeep}.Encode()); err != nil {
		logger.Error("Beep probe failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	time.Sleep(*beepDelay)

	if err := channel.Send(protocol.Control{Token: protocol.TokenStart}.Encode()); err != nil {
		logger.Error("Start token failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	start := time.Now()
	sent := 0
	for off := 0; off < len(pcm); off += *chunkSize {
		end := off + *chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := channel.Send(pcm[off:end]); err != nil {
			logger.Warn("Chunk send failed",
				slog.Int("offset", off),
				slog.String("error", err.Error()),
			)
		}
		sent++
		time.Sleep(*pace)
	}

	for i := 0; i < endRepeats; i++ {
		if err := channel.Send(protocol.Control{Token: protocol.TokenEnd}.Encode()); err != nil {
			logger.Warn("End token failed", slog.String("error", err.Error()))
		}
		time.Sleep(*pace)
	}

	stats := channel.GetStats()
	logger.Info("Stream complete",
		slog.Int("chunks", sent),
		slog.Duration("elapsed", time.Since(start)),
		slog.Uint64("datagrams_sent", stats.Sent),
		slog.Uint64("send_errors", stats.SendErrors),
	)
}
