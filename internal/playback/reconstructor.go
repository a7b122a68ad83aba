package playback

import (
	"log/slog"
	"math"
	"time"

	"github.com/MarLuar/Mirror/internal/pcm"
	"github.com/MarLuar/Mirror/internal/protocol"
)

// State identifies the reconstructor's position in its session lifecycle.
type State int

const (
	// StateIdle means no playback session is active.
	StateIdle State = iota
	// StateStreaming means payload datagrams are being rendered.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Config holds reconstructor settings.
type Config struct {
	// SourceChannels is the channel count of incoming PCM (the sender's
	// interleave), independent of the output's channel count.
	SourceChannels int
	// SilenceWindow is how long streaming survives without a payload before
	// the session is considered over.
	SilenceWindow time.Duration
	// WriteTimeout bounds each output write; a block that cannot be accepted
	// in time is dropped.
	WriteTimeout time.Duration
	// BeepDuration and BeepFrequency shape the generated connectivity tone.
	BeepDuration  time.Duration
	BeepFrequency float64
	// SampleRate of the output, used for the beep and downmix scratch sizing.
	SampleRate int
}

// Stats is a snapshot of reconstructor counters.
type Stats struct {
	State           string `json:"state"`
	Sessions        uint64 `json:"sessions"`
	BlocksPlayed    uint64 `json:"blocks_played"`
	BlocksDropped   uint64 `json:"blocks_dropped"`
	BeepsPlayed     uint64 `json:"beeps_played"`
	SilenceTimeouts uint64 `json:"silence_timeouts"`
}

// Reconstructor turns a datagram stream back into rendered audio. It is a
// two-state machine: Idle until a START token or a first payload arrives,
// Streaming until an END token or a silence window elapses. State is owned
// by the single loop goroutine that feeds it; there is no locking.
type Reconstructor struct {
	config Config
	output Output
	logger *slog.Logger

	state        State
	lastReceived time.Time
	mono         []int16

	sessions        uint64
	blocksPlayed    uint64
	blocksDropped   uint64
	beepsPlayed     uint64
	silenceTimeouts uint64
}

// New creates a reconstructor. Zero config fields get working defaults.
func New(cfg Config, output Output, logger *slog.Logger) *Reconstructor {
	if cfg.SourceChannels <= 0 {
		cfg.SourceChannels = 2
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 100 * time.Millisecond
	}
	if cfg.BeepDuration <= 0 {
		cfg.BeepDuration = 200 * time.Millisecond
	}
	if cfg.BeepFrequency <= 0 {
		cfg.BeepFrequency = 1000
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}

	return &Reconstructor{
		config: cfg,
		output: output,
		logger: logger,
		state:  StateIdle,
		mono:   make([]int16, 4096),
	}
}

// State returns the current session state.
func (r *Reconstructor) State() State {
	return r.state
}

// HandleControl applies one control token at the given time.
func (r *Reconstructor) HandleControl(ctrl protocol.Control, now time.Time) {
	switch ctrl.Token {
	case protocol.TokenStart:
		if r.state == StateIdle {
			r.enterStreaming(now)
		} else {
			// Duplicate START inside a session just refreshes the window.
			r.lastReceived = now
		}

	case protocol.TokenEnd:
		// END wins over the silence window; duplicates land in Idle and are
		// no-ops.
		if r.state == StateStreaming {
			r.logger.Info("Playback session ended",
				slog.Uint64("blocks_played", r.blocksPlayed),
				slog.Uint64("blocks_dropped", r.blocksDropped),
			)
			r.enterIdle()
		}

	case protocol.TokenBeep:
		r.playBeep()

	case protocol.TokenStop, protocol.TokenTest:
		// Capture-side tokens; acknowledged by classification, nothing to do
		// on the playback path.
	}
}

// HandlePayload renders one PCM payload datagram at the given time.
func (r *Reconstructor) HandlePayload(data []byte, now time.Time) {
	if r.state == StateIdle {
		r.enterStreaming(now)
	}
	r.lastReceived = now

	samples, err := r.decode(data)
	if err != nil {
		r.logger.Warn("Dropping malformed payload",
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.output.Write(samples, r.config.WriteTimeout); err != nil {
		r.blocksDropped++
		if err != ErrWriteTimeout {
			r.logger.Warn("Output write failed", slog.String("error", err.Error()))
		}
		return
	}
	r.blocksPlayed++
}

// Tick checks the silence window. Callers drive it from their service loop.
func (r *Reconstructor) Tick(now time.Time) {
	if r.state != StateStreaming {
		return
	}
	if now.Sub(r.lastReceived) < r.config.SilenceWindow {
		return
	}

	r.silenceTimeouts++
	r.logger.Info("Playback session timed out",
		slog.Duration("silence_window", r.config.SilenceWindow),
		slog.Uint64("blocks_played", r.blocksPlayed),
	)
	r.enterIdle()
}

func (r *Reconstructor) enterStreaming(now time.Time) {
	r.state = StateStreaming
	r.lastReceived = now
	r.blocksPlayed = 0
	r.blocksDropped = 0
	r.sessions++
	r.logger.Info("Playback session started", slog.Uint64("session", r.sessions))
}

func (r *Reconstructor) enterIdle() {
	r.state = StateIdle
	if err := r.output.Flush(); err != nil {
		r.logger.Warn("Output flush failed", slog.String("error", err.Error()))
	}
}

// decode converts payload bytes to samples matching the output's channel
// count, downmixing when the source carries more channels than the sink.
func (r *Reconstructor) decode(data []byte) ([]int16, error) {
	needed := len(data) / 2
	if cap(r.mono) < needed {
		r.mono = make([]int16, needed)
	}
	samples := r.mono[:needed]
	if _, err := pcm.BytesToSamples(data, samples); err != nil {
		return nil, err
	}

	if r.config.SourceChannels <= r.output.Channels() {
		return samples, nil
	}

	frames, err := pcm.DownmixStereo(samples, samples)
	if err != nil {
		return nil, err
	}
	return samples[:frames], nil
}

func (r *Reconstructor) playBeep() {
	frames := int(float64(r.config.SampleRate) * r.config.BeepDuration.Seconds())
	channels := r.output.Channels()
	tone := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(0.3 * math.MaxInt16 * math.Sin(2*math.Pi*r.config.BeepFrequency*float64(i)/float64(r.config.SampleRate)))
		for ch := 0; ch < channels; ch++ {
			tone[i*channels+ch] = v
		}
	}

	if err := r.output.Write(tone, r.config.BeepDuration+r.config.WriteTimeout); err != nil {
		r.logger.Warn("Beep playback failed", slog.String("error", err.Error()))
		return
	}
	r.beepsPlayed++
}

// GetStats returns a snapshot of reconstructor counters. Safe only from the
// goroutine that drives the reconstructor.
func (r *Reconstructor) GetStats() Stats {
	return Stats{
		State:           r.state.String(),
		Sessions:        r.sessions,
		BlocksPlayed:    r.blocksPlayed,
		BlocksDropped:   r.blocksDropped,
		BeepsPlayed:     r.beepsPlayed,
		SilenceTimeouts: r.silenceTimeouts,
	}
}
