package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MarLuar/Mirror/internal/config"
	"github.com/MarLuar/Mirror/internal/metrics"
	"github.com/MarLuar/Mirror/internal/protocol"
	"github.com/MarLuar/Mirror/internal/stream"
)

// UDPServer receives capture datagrams from devices
type UDPServer struct {
	conn      *net.UDPConn
	config    *config.ServerConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	streamMgr *stream.Manager

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Datagram processing
	datagramChan chan *incomingDatagram

	// Counters
	datagramsReceived  uint64
	datagramsProcessed uint64
	receiveErrors      uint64
	mu                 sync.RWMutex
}

// incomingDatagram represents a received UDP datagram with metadata
type incomingDatagram struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, m *metrics.Metrics, streamMgr *stream.Manager) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:       cfg,
		logger:       logger,
		metrics:      m,
		streamMgr:    streamMgr,
		ctx:          ctx,
		cancel:       cancel,
		datagramChan: make(chan *incomingDatagram, 1000),
	}
}

// Start begins listening for UDP datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// Dispatch stays single-threaded so datagrams from one device apply to
	// its stream in arrival order.
	s.wg.Add(1)
	go s.dispatchLoop()

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// LocalAddr returns the bound UDP address, nil before Start.
func (s *UDPServer) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	// Cancel context to signal shutdown
	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// Wait for all goroutines to finish
	s.wg.Wait()

	// Log final statistics
	s.mu.RLock()
	datagramsReceived := s.datagramsReceived
	datagramsProcessed := s.datagramsProcessed
	receiveErrors := s.receiveErrors
	s.mu.RUnlock()

	s.logger.Info("UDP server stopped",
		slog.Uint64("datagrams_received", datagramsReceived),
		slog.Uint64("datagrams_processed", datagramsProcessed),
		slog.Uint64("receive_errors", receiveErrors),
	)

	return nil
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer close(s.datagramChan)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
			// Continue to receive datagrams
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			// Check if this is a timeout (expected during graceful shutdown)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue // Check context and try again
			}

			// Check if we're shutting down
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				s.mu.Lock()
				s.receiveErrors++
				s.mu.Unlock()
				s.metrics.RecordReceiveError()
				continue
			}
		}

		s.mu.Lock()
		s.datagramsReceived++
		s.mu.Unlock()

		// Copy out, the buffer is reused on the next read.
		data := make([]byte, n)
		copy(data, buffer[:n])

		datagram := &incomingDatagram{
			data:       data,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.datagramChan <- datagram:
			// Datagram queued successfully
		default:
			// Channel full, drop and log
			s.logger.Warn("Datagram queue full, dropping datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("size", n),
			)
		}
	}
}

// dispatchLoop classifies queued datagrams and applies them to streams
func (s *UDPServer) dispatchLoop() {
	defer s.wg.Done()

	for datagram := range s.datagramChan {
		s.handleDatagram(datagram)
	}

	s.logger.Debug("Dispatch loop stopped")
}

// handleDatagram classifies one datagram and routes it to the stream manager
func (s *UDPServer) handleDatagram(datagram *incomingDatagram) {
	addr := datagram.remoteAddr.String()

	ctrl, isControl := protocol.Classify(datagram.data)
	s.metrics.RecordDatagram(isControl)

	if isControl {
		s.logger.Debug("Control datagram received",
			slog.String("remote_addr", addr),
			slog.String("token", ctrl.String()),
		)
		s.streamMgr.HandleControl(addr, ctrl)
	} else {
		s.streamMgr.HandlePayload(addr, datagram.data)
	}

	s.mu.Lock()
	s.datagramsProcessed++
	s.mu.Unlock()
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		DatagramsReceived:  s.datagramsReceived,
		DatagramsProcessed: s.datagramsProcessed,
		ReceiveErrors:      s.receiveErrors,
		ActiveStreams:      uint64(s.streamMgr.GetActiveSessionCount()),
		QueueSize:          uint64(len(s.datagramChan)),
		QueueCapacity:      uint64(cap(s.datagramChan)),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	DatagramsReceived  uint64 `json:"datagrams_received"`
	DatagramsProcessed uint64 `json:"datagrams_processed"`
	ReceiveErrors      uint64 `json:"receive_errors"`
	ActiveStreams      uint64 `json:"active_streams"`
	QueueSize          uint64 `json:"queue_size"`
	QueueCapacity      uint64 `json:"queue_capacity"`
}
