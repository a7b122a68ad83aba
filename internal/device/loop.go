package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/MarLuar/Mirror/internal/capture"
	"github.com/MarLuar/Mirror/internal/playback"
	"github.com/MarLuar/Mirror/internal/protocol"
	"github.com/MarLuar/Mirror/internal/transport"
)

// Mode identifies what the loop is servicing.
type Mode int

const (
	// ModeCapturing means microphone blocks are being read and forwarded.
	ModeCapturing Mode = iota
	// ModePlayback means the loop is polling for playback datagrams.
	ModePlayback
)

func (m Mode) String() string {
	switch m {
	case ModeCapturing:
		return "capturing"
	case ModePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Config holds device loop settings.
type Config struct {
	// BlockSamples is the capture block size in samples.
	BlockSamples int
	// MaxPlaybackDatagram bounds the playback receive buffer.
	MaxPlaybackDatagram int
}

// Loop is the device's single-threaded service loop. Each iteration polls
// the playback channel for control, then services at most one unit of work
// for the current mode: one capture block read and forwarded, or one
// playback datagram received and rendered. Mode exclusivity comes from the
// loop itself; there are no locks and no second goroutine touching the
// audio path.
type Loop struct {
	config  Config
	logger  *slog.Logger
	engine  *capture.Engine
	sender  *transport.BlockSender
	recon   *playback.Reconstructor
	channel *transport.Channel
	beat    *transport.Heartbeat

	mode  Mode
	block []int16
	buf   []byte

	blocksForwarded uint64
	iterations      uint64
}

// New assembles a device loop from its parts. The channel is the playback
// receive socket; the sender owns the capture flow.
func New(cfg Config, engine *capture.Engine, sender *transport.BlockSender,
	recon *playback.Reconstructor, channel *transport.Channel, beat *transport.Heartbeat,
	logger *slog.Logger) *Loop {

	if cfg.BlockSamples <= 0 {
		cfg.BlockSamples = 320
	}
	if cfg.MaxPlaybackDatagram <= 0 {
		cfg.MaxPlaybackDatagram = 2048
	}

	return &Loop{
		config:  cfg,
		logger:  logger,
		engine:  engine,
		sender:  sender,
		recon:   recon,
		channel: channel,
		beat:    beat,
		mode:    ModeCapturing,
		block:   make([]int16, cfg.BlockSamples),
		buf:     make([]byte, cfg.MaxPlaybackDatagram),
	}
}

// Mode returns the loop's current mode.
func (l *Loop) Mode() Mode {
	return l.mode
}

// Run services the loop until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Device loop started",
		slog.Int("block_samples", l.config.BlockSamples),
		slog.String("mode", l.mode.String()),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Device loop stopping",
				slog.Uint64("blocks_forwarded", l.blocksForwarded),
				slog.Uint64("iterations", l.iterations),
			)
			return ctx.Err()
		default:
		}

		l.Step(time.Now())
	}
}

// Step runs one loop iteration at the given time. Split out from Run so
// tests can drive iterations directly.
func (l *Loop) Step(now time.Time) {
	l.iterations++

	l.pollPlayback(now)

	switch l.mode {
	case ModeCapturing:
		l.serviceCapture(now)
	case ModePlayback:
		l.recon.Tick(now)
		if l.recon.State() == playback.StateIdle {
			// Playback session over, capture resumes.
			l.mode = ModeCapturing
			l.logger.Info("Returning to capture mode")
		}
	}
}

// pollPlayback drains at most one datagram from the playback channel.
func (l *Loop) pollPlayback(now time.Time) {
	n, _, ok, err := l.channel.Poll(l.buf)
	if err != nil {
		l.logger.Warn("Playback poll failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}

	data := l.buf[:n]
	if ctrl, isControl := protocol.Classify(data); isControl {
		l.handleControl(ctrl, now)
		return
	}

	// Host audio preempts capture.
	if l.mode != ModePlayback {
		l.mode = ModePlayback
		l.logger.Info("Entering playback mode on payload")
	}
	l.recon.HandlePayload(data, now)
}

func (l *Loop) handleControl(ctrl protocol.Control, now time.Time) {
	switch ctrl.Token {
	case protocol.TokenStart:
		if l.mode != ModePlayback {
			l.mode = ModePlayback
			l.logger.Info("Entering playback mode",
				slog.String("token", ctrl.String()),
			)
		}
		l.recon.HandleControl(ctrl, now)

	case protocol.TokenEnd:
		l.recon.HandleControl(ctrl, now)
		if l.recon.State() == playback.StateIdle && l.mode == ModePlayback {
			l.mode = ModeCapturing
			l.logger.Info("Returning to capture mode")
		}

	default:
		l.recon.HandleControl(ctrl, now)
	}
}

// serviceCapture reads one block from the microphone and forwards it.
func (l *Loop) serviceCapture(now time.Time) {
	if l.beat != nil {
		if err := l.beat.Tick(now); err != nil {
			l.logger.Debug("Heartbeat probe failed", slog.String("error", err.Error()))
		}
	}

	n, err := l.engine.ReadBlock(l.block)
	if err != nil {
		l.logger.Warn("Capture read failed", slog.String("error", err.Error()))
		return
	}
	if n == 0 {
		// Nothing ready this cycle.
		return
	}

	if err := l.sender.SendBlock(l.block[:n]); err != nil {
		// Loss is survivable, the channel rebinds on repeated failures.
		return
	}
	l.blocksForwarded++
	if l.beat != nil {
		l.beat.Touch(now)
	}
}

// BlocksForwarded returns the number of capture blocks sent so far.
func (l *Loop) BlocksForwarded() uint64 {
	return l.blocksForwarded
}
