package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MarLuar/Mirror/internal/metrics"
	"github.com/MarLuar/Mirror/internal/protocol"
	"github.com/MarLuar/Mirror/internal/recorder"
	"github.com/MarLuar/Mirror/internal/stt"
)

// CaptureStream represents one device's active capture session. Streams are
// keyed by the sender's UDP address; a device streams at most one capture at
// a time.
type CaptureStream struct {
	Addr         string
	StartTime    time.Time
	LastActivity time.Time

	recording *recorder.Session

	// stopAt is set by a STOP token carrying a duration; the cleanup pass
	// finalizes the stream once it passes.
	stopAt time.Time

	payloadCount uint64
	payloadBytes uint64

	mu sync.RWMutex
}

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	RecorderConfig      recorder.Config
	TranscriptionConfig stt.Config
	// Timeout after which an idle stream is finalized.
	Timeout time.Duration
}

// Manager owns all active capture streams: it creates them on the first
// datagram from a device, routes payloads into their recordings, and
// finalizes them on a stop token or idle timeout. Finalized recordings that
// hold real content are submitted for transcription asynchronously.
type Manager struct {
	sessions map[string]*CaptureStream
	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   ManagerConfig

	sttClient *stt.Client

	transcripts       uint64
	transcriptsFailed uint64
	statsMu           sync.Mutex

	uploadWG sync.WaitGroup

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a new stream manager with its transcription client
func NewManager(logger *slog.Logger, m *metrics.Metrics, config ManagerConfig) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	config.TranscriptionConfig.OnRetry = m.RecordUploadRetry
	sttClient, err := stt.NewClient(config.TranscriptionConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	mgr := &Manager{
		sessions:  make(map[string]*CaptureStream),
		logger:    logger,
		metrics:   m,
		config:    config,
		sttClient: sttClient,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go mgr.startCleanupRoutine()

	return mgr, nil
}

// HandleControl applies one control token from the given device address.
func (m *Manager) HandleControl(addr string, ctrl protocol.Control) {
	switch ctrl.Token {
	case protocol.TokenStart:
		if _, err := m.getOrCreate(addr); err != nil {
			m.logger.Error("Failed to start capture stream",
				slog.String("addr", addr),
				slog.String("error", err.Error()),
			)
		}

	case protocol.TokenStop:
		session, exists := m.get(addr)
		if !exists {
			return
		}
		if ctrl.HasDuration {
			// The device keeps streaming for the advertised tail; hold the
			// stream open until it passes.
			session.mu.Lock()
			session.stopAt = time.Now().Add(time.Duration(ctrl.DurationMS) * time.Millisecond)
			session.LastActivity = time.Now()
			session.mu.Unlock()

			m.logger.Info("Deferred stop scheduled",
				slog.String("addr", addr),
				slog.Uint64("tail_ms", uint64(ctrl.DurationMS)),
			)
			return
		}
		m.FinalizeStream(addr, "stop token")

	case protocol.TokenEnd:
		// END closes playback, not capture; a device that sends it here has
		// nothing in flight.
		if _, exists := m.get(addr); exists {
			m.FinalizeStream(addr, "end token")
		}

	case protocol.TokenBeep, protocol.TokenTest:
		// Connectivity probes carry no capture semantics.
	}
}

// HandlePayload routes one PCM payload datagram into its stream's recording,
// creating the stream if the device skipped its START token.
func (m *Manager) HandlePayload(addr string, data []byte) {
	session, err := m.getOrCreate(addr)
	if err != nil {
		m.logger.Error("Failed to create capture stream for payload",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return
	}

	session.mu.Lock()
	session.LastActivity = time.Now()
	session.payloadCount++
	session.payloadBytes += uint64(len(data))
	capped, err := session.recording.Append(data)
	session.mu.Unlock()

	if err != nil {
		m.logger.Error("Failed to append capture data",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		m.AbortStream(addr)
		return
	}

	if capped {
		m.FinalizeStream(addr, "duration cap")
	}
}

func (m *Manager) get(addr string) (*CaptureStream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, exists := m.sessions[addr]
	return session, exists
}

func (m *Manager) getOrCreate(addr string) (*CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessions[addr]; exists {
		return existing, nil
	}

	recording, err := recorder.Begin(m.config.RecorderConfig, m.logger)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &CaptureStream{
		Addr:         addr,
		StartTime:    now,
		LastActivity: now,
		recording:    recording,
	}
	m.sessions[addr] = session

	m.metrics.RecordStreamCreated()
	m.metrics.SetActiveStreams(len(m.sessions))

	m.logger.Info("Created capture stream",
		slog.String("addr", addr),
		slog.String("recording_id", recording.ID()),
	)

	return session, nil
}

// FinalizeStream closes a stream's recording and, when it holds content,
// submits it for transcription. Returns false when no stream exists for the
// address.
func (m *Manager) FinalizeStream(addr, reason string) bool {
	m.mu.Lock()
	session, exists := m.sessions[addr]
	if !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, addr)
	m.metrics.SetActiveStreams(len(m.sessions))
	m.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()

	duration := time.Since(session.StartTime)
	m.metrics.RecordStreamFinalized(duration.Seconds())

	m.logger.Info("Finalizing capture stream",
		slog.String("addr", addr),
		slog.String("reason", reason),
		slog.Duration("duration", duration),
		slog.Uint64("payloads", session.payloadCount),
		slog.Uint64("payload_bytes", session.payloadBytes),
	)

	if err := session.recording.Finalize(); err != nil {
		m.logger.Error("Failed to finalize recording",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return true
	}
	m.metrics.RecordRecordingCompleted(session.recording.Size())

	if !session.recording.HasContent() {
		m.metrics.RecordRecordingEmpty()
		m.logger.Info("Recording below content threshold, skipping upload",
			slog.String("addr", addr),
			slog.Uint64("data_bytes", uint64(session.recording.DataBytes())),
		)
		return true
	}

	m.uploadWG.Add(1)
	go m.submitRecording(addr, session.recording.Path(), session.recording.Size())

	return true
}

// AbortStream discards a stream and removes its partial recording.
func (m *Manager) AbortStream(addr string) bool {
	m.mu.Lock()
	session, exists := m.sessions[addr]
	if !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, addr)
	m.metrics.SetActiveStreams(len(m.sessions))
	m.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := session.recording.Abort(); err != nil {
		m.logger.Warn("Failed to abort recording",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
	}
	m.metrics.RecordRecordingAborted()

	return true
}

// submitRecording uploads one finalized recording and logs its transcript.
func (m *Manager) submitRecording(addr, path string, size int64) {
	defer m.uploadWG.Done()

	m.metrics.RecordUploadRequest()

	file, err := os.Open(path)
	if err != nil {
		m.logger.Error("Failed to open recording for upload",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		m.recordUploadFailure(0)
		return
	}
	defer file.Close()

	uploadTimeout := 2 * m.config.TranscriptionConfig.Timeout
	if uploadTimeout <= 0 {
		uploadTimeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(m.ctx, uploadTimeout)
	defer cancel()

	startTime := time.Now()
	transcript, err := m.sttClient.Submit(ctx, file, size)
	if err != nil {
		m.logger.Error("Transcription failed",
			slog.String("addr", addr),
			slog.String("path", path),
			slog.Int64("size", size),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, stt.ErrEmptyRecording) || errors.Is(err, stt.ErrOversizeRecording) {
			m.metrics.RecordUploadRejected()
		}
		m.recordUploadFailure(time.Since(startTime).Seconds())
		return
	}

	m.metrics.RecordUploadSuccess(
		transcript.TotalTime.Seconds(),
		transcript.LoadTime.Seconds(),
		transcript.ParseTime.Seconds(),
	)

	m.statsMu.Lock()
	m.transcripts++
	m.statsMu.Unlock()

	m.logger.Info("Transcription completed",
		slog.String("addr", addr),
		slog.String("path", path),
		slog.String("text", transcript.Text),
		slog.Duration("load_time", transcript.LoadTime),
		slog.Duration("assemble_time", transcript.AssembleTime),
		slog.Duration("round_trip_time", transcript.RoundTripTime),
		slog.Duration("parse_time", transcript.ParseTime),
		slog.Duration("total_time", transcript.TotalTime),
	)
}

func (m *Manager) recordUploadFailure(seconds float64) {
	m.metrics.RecordUploadFailure(seconds)
	m.statsMu.Lock()
	m.transcriptsFailed++
	m.statsMu.Unlock()
}

// GetActiveSessionCount returns the number of currently active streams
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StreamInfo represents session information for monitoring APIs
type StreamInfo struct {
	Addr         string        `json:"addr"`
	RecordingID  string        `json:"recording_id"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	PayloadCount uint64        `json:"payload_count"`
	PayloadBytes uint64        `json:"payload_bytes"`
}

// GetAllStreams returns a snapshot of all active streams (for monitoring)
func (m *Manager) GetAllStreams() []StreamInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		session.mu.RLock()
		infos = append(infos, StreamInfo{
			Addr:         session.Addr,
			RecordingID:  session.recording.ID(),
			StartTime:    session.StartTime,
			LastActivity: session.LastActivity,
			Duration:     time.Since(session.StartTime),
			PayloadCount: session.payloadCount,
			PayloadBytes: session.payloadBytes,
		})
		session.mu.RUnlock()
	}

	return infos
}

// ManagerStats aggregates manager counters for the status API
type ManagerStats struct {
	ActiveStreams     int             `json:"active_streams"`
	Transcripts       uint64          `json:"transcripts"`
	TranscriptsFailed uint64          `json:"transcripts_failed"`
	Uploader          stt.ClientStats `json:"uploader"`
}

// GetStats returns current manager statistics
func (m *Manager) GetStats() ManagerStats {
	m.statsMu.Lock()
	transcripts := m.transcripts
	failed := m.transcriptsFailed
	m.statsMu.Unlock()

	return ManagerStats{
		ActiveStreams:     m.GetActiveSessionCount(),
		Transcripts:       transcripts,
		TranscriptsFailed: failed,
		Uploader:          m.sttClient.GetStats(),
	}
}

// Stop gracefully stops the stream manager, finalizing every open stream and
// waiting for in-flight uploads.
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream manager...")

	m.mu.RLock()
	addrs := make([]string, 0, len(m.sessions))
	for addr := range m.sessions {
		addrs = append(addrs, addr)
	}
	m.mu.RUnlock()

	for _, addr := range addrs {
		m.FinalizeStream(addr, "shutdown")
	}

	m.uploadWG.Wait()

	// Cancel context to stop cleanup routine
	m.cancel()
	<-m.cleanup

	if err := m.sttClient.Close(); err != nil {
		m.logger.Warn("Error closing transcription client", slog.String("error", err.Error()))
	}

	stats := m.GetStats()
	m.logger.Info("Stream manager stopped",
		slog.Uint64("transcripts", stats.Transcripts),
		slog.Uint64("transcripts_failed", stats.TranscriptsFailed),
		slog.Uint64("total_uploads", stats.Uploader.TotalUploads),
		slog.Float64("upload_success_rate", stats.Uploader.SuccessRate),
	)
}

// startCleanupRoutine runs in a separate goroutine to finalize expired and
// deferred-stop streams
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	m.logger.Info("Stream cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Stream cleanup routine stopping")
			return

		case <-ticker.C:
			m.sweepStreams()
		}
	}
}

// sweepStreams finalizes streams whose deferred stop has passed or whose
// idle timeout has expired.
func (m *Manager) sweepStreams() {
	now := time.Now()
	var stopped, expired []string

	m.mu.RLock()
	for addr, session := range m.sessions {
		session.mu.RLock()
		if !session.stopAt.IsZero() && now.After(session.stopAt) {
			stopped = append(stopped, addr)
		} else if now.Sub(session.LastActivity) > m.config.Timeout {
			expired = append(expired, addr)
		}
		session.mu.RUnlock()
	}
	m.mu.RUnlock()

	for _, addr := range stopped {
		m.FinalizeStream(addr, "deferred stop")
	}
	for _, addr := range expired {
		m.metrics.RecordStreamExpired()
		m.FinalizeStream(addr, "idle timeout")
	}
}
