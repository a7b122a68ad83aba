package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrSendFailure wraps datagram send errors. Non-fatal: loss is accepted on
// the audio path and the channel self-heals by rebinding after repeated
// failures.
var ErrSendFailure = errors.New("transport send failure")

// Config holds channel settings.
type Config struct {
	// LocalAddr is the bind address ("host:port"); empty means an ephemeral
	// local port chosen by the OS.
	LocalAddr string
	// RemoteAddr is the default send destination; empty for receive-only
	// channels.
	RemoteAddr string
	// MaxSendFailures is the number of consecutive send failures tolerated
	// before the socket is destroyed and recreated.
	MaxSendFailures int
}

// Channel is one UDP socket dedicated to a single flow (capture audio out,
// control in, or playback audio in). There is no flow control and no
// retransmission: a send either lands or the datagram is gone.
type Channel struct {
	config Config
	logger *slog.Logger

	conn   *net.UDPConn
	remote *net.UDPAddr

	consecutiveFailures int
	sent                uint64
	received            uint64
	sendErrors          uint64
	rebinds             uint64

	mu sync.Mutex
}

// Open creates the channel and binds its socket.
func Open(cfg Config, logger *slog.Logger) (*Channel, error) {
	if cfg.MaxSendFailures <= 0 {
		cfg.MaxSendFailures = 5
	}

	c := &Channel{config: cfg, logger: logger}
	if err := c.bind(); err != nil {
		return nil, err
	}

	logger.Info("Transport channel opened",
		slog.String("local_addr", c.conn.LocalAddr().String()),
		slog.String("remote_addr", cfg.RemoteAddr),
	)

	return c, nil
}

func (c *Channel) bind() error {
	var laddr *net.UDPAddr
	if c.config.LocalAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", c.config.LocalAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve local address: %w", err)
		}
		laddr = addr
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket: %w", err)
	}

	if c.config.RemoteAddr != "" {
		raddr, err := net.ResolveUDPAddr("udp", c.config.RemoteAddr)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to resolve remote address: %w", err)
		}
		c.remote = raddr
	}

	c.conn = conn
	return nil
}

// Send transmits one datagram to the channel's remote address. A failure is
// logged and counted, never fatal; once the consecutive-failure threshold is
// reached the socket is torn down and recreated.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return fmt.Errorf("channel has no remote address")
	}

	_, err := c.conn.WriteToUDP(data, c.remote)
	if err == nil {
		c.sent++
		c.consecutiveFailures = 0
		return nil
	}

	c.sendErrors++
	c.consecutiveFailures++
	c.logger.Warn("Datagram send failed",
		slog.String("remote_addr", c.remote.String()),
		slog.Int("size", len(data)),
		slog.Int("consecutive_failures", c.consecutiveFailures),
		slog.String("error", err.Error()),
	)

	if c.consecutiveFailures >= c.config.MaxSendFailures {
		c.rebindLocked()
	}

	return fmt.Errorf("%w: %v", ErrSendFailure, err)
}

// SendTo transmits one datagram to an explicit destination, bypassing the
// configured remote. Used by receivers replying to the sender they heard.
func (c *Channel) SendTo(data []byte, addr *net.UDPAddr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.WriteToUDP(data, addr); err != nil {
		c.sendErrors++
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}

	c.sent++
	return nil
}

// Poll performs one non-blocking receive check. It returns the datagram
// length, the sender address and true when a datagram was available; false
// with a nil error means nothing arrived this cycle.
func (c *Channel) Poll(buf []byte) (int, *net.UDPAddr, bool, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, false, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("receive failed: %w", err)
	}

	c.mu.Lock()
	c.received++
	c.mu.Unlock()

	return n, addr, true, nil
}

// Rebind destroys and recreates the socket binding. This is the transport's
// only self-healing behavior.
func (c *Channel) Rebind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebindLocked()
}

func (c *Channel) rebindLocked() error {
	c.conn.Close()
	c.rebinds++
	c.consecutiveFailures = 0

	if err := c.bind(); err != nil {
		c.logger.Error("Channel rebind failed", slog.String("error", err.Error()))
		return err
	}

	c.logger.Info("Transport channel rebound",
		slog.String("local_addr", c.conn.LocalAddr().String()),
		slog.Uint64("rebinds", c.rebinds),
	)
	return nil
}

// LocalAddr returns the channel's bound address.
func (c *Channel) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.LocalAddr()
}

// Stats is a snapshot of channel counters.
type Stats struct {
	Sent       uint64 `json:"sent"`
	Received   uint64 `json:"received"`
	SendErrors uint64 `json:"send_errors"`
	Rebinds    uint64 `json:"rebinds"`
}

// GetStats returns current channel statistics.
func (c *Channel) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Sent: c.sent, Received: c.received, SendErrors: c.sendErrors, Rebinds: c.rebinds}
}

// Close releases the socket.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
