package transport

import (
	"time"

	"github.com/MarLuar/Mirror/internal/protocol"
)

// Heartbeat sends a periodic reachability probe over a channel. The probe is
// the TEST control token; the receiving side simply drops it, so the only
// effect is keeping NAT/ARP state warm and exercising the send path while a
// flow is otherwise idle.
type Heartbeat struct {
	channel  *Channel
	interval time.Duration
	lastSent time.Time
}

// NewHeartbeat creates a heartbeat on the given channel. A non-positive
// interval defaults to 10 seconds.
func NewHeartbeat(channel *Channel, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Heartbeat{channel: channel, interval: interval}
}

// Tick sends the probe if the interval has elapsed since the last probe.
// Callers drive it from their service loop; there is no internal goroutine.
func (h *Heartbeat) Tick(now time.Time) error {
	if now.Sub(h.lastSent) < h.interval {
		return nil
	}
	h.lastSent = now
	return h.channel.Send(protocol.Control{Token: protocol.TokenTest}.Encode())
}

// Touch resets the probe timer without sending. Called after real traffic so
// active flows do not also carry probes.
func (h *Heartbeat) Touch(now time.Time) {
	h.lastSent = now
}
