package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MarLuar/Mirror/internal/wav"
)

// ErrAllocationFailure wraps failures to create or grow the backing file.
// Capture cannot proceed without storage, so callers treat it as fatal for
// the session.
var ErrAllocationFailure = errors.New("recording allocation failure")

// ErrSessionClosed is returned by operations on a finalized or aborted
// session.
var ErrSessionClosed = errors.New("recording session closed")

// SessionState tracks the lifecycle of one recording.
type SessionState int

const (
	// StateRecording means the file is open and accepting PCM.
	StateRecording SessionState = iota
	// StateCompleted means the header was patched and the file closed.
	StateCompleted
	// StateAborted means the partial file was removed.
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config holds recording session settings.
type Config struct {
	// Dir is where recordings are written.
	Dir string
	// Format describes the PCM being captured.
	SampleRate    int
	BitsPerSample int
	Channels      int
	// MaxDuration caps a single recording; appends past the cap report the
	// cap so the caller can finalize.
	MaxDuration time.Duration
	// MinDataBytes is the smallest data size considered real content. A
	// finalized file below it is valid but empty for submission purposes.
	MinDataBytes uint32
}

// Session owns one recording file from header write to finalize or abort.
// The header is written with a zero data size at Begin and patched in place
// at Finalize, so a crash mid-capture leaves a structurally complete file
// whose header simply claims no data.
type Session struct {
	config Config
	logger *slog.Logger

	id        string
	path      string
	file      *os.File
	header    wav.Header
	dataBytes uint32
	startedAt time.Time
	state     SessionState
}

// Begin creates the recording file and writes the placeholder header.
func Begin(cfg Config, logger *slog.Logger) (*Session, error) {
	header, err := wav.NewHeader(cfg.SampleRate, cfg.BitsPerSample, cfg.Channels)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Second
	}

	id := uuid.New().String()
	path := filepath.Join(cfg.Dir, fmt.Sprintf("rec_%s.wav", id))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailure, err)
	}

	if err := header.WriteHeader(file, 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailure, err)
	}

	s := &Session{
		config:    cfg,
		logger:    logger,
		id:        id,
		path:      path,
		file:      file,
		header:    header,
		startedAt: time.Now(),
		state:     StateRecording,
	}

	logger.Info("Recording session started",
		slog.String("session_id", id),
		slog.String("path", path),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels),
	)

	return s, nil
}

// Append writes one block of PCM bytes. It returns true when the recording
// has reached its duration cap and should be finalized.
func (s *Session) Append(data []byte) (capped bool, err error) {
	if s.state != StateRecording {
		return false, ErrSessionClosed
	}

	if _, err := s.file.Write(data); err != nil {
		return false, fmt.Errorf("%w: %v", ErrAllocationFailure, err)
	}
	s.dataBytes += uint32(len(data))

	return s.Duration() >= s.config.MaxDuration, nil
}

// Finalize patches the header with the true data size and closes the file.
// The file is valid regardless of how much was captured.
func (s *Session) Finalize() error {
	if s.state != StateRecording {
		return ErrSessionClosed
	}

	if err := s.header.Finalize(s.file, s.dataBytes); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to patch header: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}

	s.state = StateCompleted
	s.logger.Info("Recording finalized",
		slog.String("session_id", s.id),
		slog.String("path", s.path),
		slog.Uint64("data_bytes", uint64(s.dataBytes)),
		slog.Duration("duration", s.Duration()),
	)
	return nil
}

// Abort closes and removes the partial file. An aborted recording is never
// submitted.
func (s *Session) Abort() error {
	if s.state != StateRecording {
		return ErrSessionClosed
	}

	s.file.Close()
	if err := os.Remove(s.path); err != nil {
		s.logger.Warn("Failed to remove aborted recording",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}

	s.state = StateAborted
	s.logger.Info("Recording aborted",
		slog.String("session_id", s.id),
		slog.Uint64("data_bytes", uint64(s.dataBytes)),
	)
	return nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Path returns the recording file path.
func (s *Session) Path() string { return s.path }

// State returns the session's lifecycle state.
func (s *Session) State() SessionState { return s.state }

// DataBytes returns the PCM bytes written so far.
func (s *Session) DataBytes() uint32 { return s.dataBytes }

// Size returns the total file size including the header.
func (s *Session) Size() int64 { return int64(s.dataBytes) + wav.HeaderSize }

// HasContent reports whether the recording holds enough data to be worth
// submitting.
func (s *Session) HasContent() bool {
	return s.dataBytes >= s.config.MinDataBytes
}

// Duration returns the audio duration captured so far.
func (s *Session) Duration() time.Duration {
	byteRate := s.config.SampleRate * s.config.Channels * s.config.BitsPerSample / 8
	if byteRate == 0 {
		return 0
	}
	return time.Duration(float64(s.dataBytes) / float64(byteRate) * float64(time.Second))
}
