package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarLuar/Mirror/internal/pcm"
)

var (
	// ErrPeripheralUnavailable means the input device failed to initialize.
	// Fatal to the session: the caller aborts the recording.
	ErrPeripheralUnavailable = errors.New("capture peripheral unavailable")

	// ErrNotReady means the driver has no samples yet. Transient: the caller
	// retries on the next poll without aborting.
	ErrNotReady = errors.New("capture device not ready")
)

// Format describes the fixed sample geometry of a capture session.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// Device is the audio input peripheral. Read fills the caller's buffer with
// raw samples and returns how many were written; it may return ErrNotReady
// transiently.
type Device interface {
	Open(f Format) error
	Read(dst []int16) (int, error)
	Close() error
}

// Config holds capture engine settings.
type Config struct {
	Format      Format
	GainBits    uint          // saturating left-shift applied to every block
	ReadTimeout time.Duration // upper bound on one blocking read
}

// Engine pulls fixed-size blocks from a Device and applies the configured
// gain. ReadBlock never allocates; the caller owns the block buffer and
// reuses it between reads.
type Engine struct {
	device Device
	config Config
	logger *slog.Logger
	opened bool
}

// Open initializes the input peripheral. A failure here is fatal to the
// session and surfaces as ErrPeripheralUnavailable.
func Open(device Device, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.Format.SampleRate)
	}
	if cfg.Format.BitsPerSample != 16 {
		return nil, fmt.Errorf("bits_per_sample must be 16, got %d", cfg.Format.BitsPerSample)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}

	if err := device.Open(cfg.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeripheralUnavailable, err)
	}

	logger.Info("Capture engine opened",
		slog.Int("sample_rate", cfg.Format.SampleRate),
		slog.Int("channels", cfg.Format.Channels),
		slog.Int("gain_bits", int(cfg.GainBits)),
	)

	return &Engine{device: device, config: cfg, logger: logger, opened: true}, nil
}

// ReadBlock fills block with gained samples, blocking for at most the
// configured read timeout. It returns the number of samples read; zero with
// a nil error means the device was not ready this poll.
func (e *Engine) ReadBlock(block []int16) (int, error) {
	if !e.opened {
		return 0, fmt.Errorf("capture engine is closed")
	}

	deadline := time.Now().Add(e.config.ReadTimeout)

	for {
		n, err := e.device.Read(block)
		if err == nil {
			pcm.ApplyGain(block[:n], e.config.GainBits)
			return n, nil
		}

		if !errors.Is(err, ErrNotReady) {
			return 0, fmt.Errorf("capture read failed: %w", err)
		}

		// Not ready is retried within the timeout budget, then handed back
		// to the caller's next poll.
		if time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// BlockSamples returns the sample count for a block of the given duration.
func (e *Engine) BlockSamples(d time.Duration) int {
	return int(float64(e.config.Format.SampleRate) * d.Seconds())
}

// Format returns the engine's sample geometry.
func (e *Engine) Format() Format {
	return e.config.Format
}

// Close releases the input peripheral.
func (e *Engine) Close() error {
	if !e.opened {
		return nil
	}
	e.opened = false

	if err := e.device.Close(); err != nil {
		return fmt.Errorf("failed to close capture device: %w", err)
	}

	e.logger.Info("Capture engine closed")
	return nil
}
