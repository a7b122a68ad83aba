package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/MarLuar/Mirror/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendAndPoll(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{RemoteAddr: recv.LocalAddr().String()}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := send.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 1500)
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, _, ok, err := recv.Poll(buf)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if ok {
			got = append([]byte(nil), buf[:n]...)
			break
		}
		time.Sleep(time.Millisecond)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("Received %v, want %v", got, payload)
	}

	stats := send.GetStats()
	if stats.Sent != 1 {
		t.Errorf("Sent = %d, want 1", stats.Sent)
	}
	if stats.SendErrors != 0 {
		t.Errorf("SendErrors = %d, want 0", stats.SendErrors)
	}
}

func TestPollEmpty(t *testing.T) {
	ch, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	buf := make([]byte, 1500)
	n, addr, ok, err := ch.Poll(buf)
	if err != nil {
		t.Fatalf("Poll on idle channel returned error: %v", err)
	}
	if ok || n != 0 || addr != nil {
		t.Errorf("Poll on idle channel = (%d, %v, %v), want (0, nil, false)", n, addr, ok)
	}
}

func TestSendWithoutRemote(t *testing.T) {
	ch, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	if err := ch.Send([]byte("x")); err == nil {
		t.Error("Send without a remote address should fail")
	}
}

func TestSendTo(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	// Discover the sender's address from the receiver's side, then reply.
	if err := send.SendTo([]byte("ping"), mustUDPAddr(t, recv.LocalAddr().String())); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, addr, ok, err := recv.Poll(buf)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if ok {
			if string(buf[:n]) != "ping" {
				t.Errorf("Received %q, want %q", buf[:n], "ping")
			}
			if addr == nil {
				t.Error("Poll returned a nil sender address")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Datagram never arrived")
}

func TestRebindKeepsWorking(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{RemoteAddr: recv.LocalAddr().String(), MaxSendFailures: 2}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	if err := send.Rebind(); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	if err := send.Send([]byte("after-rebind")); err != nil {
		t.Fatalf("Send after rebind failed: %v", err)
	}

	stats := send.GetStats()
	if stats.Rebinds != 1 {
		t.Errorf("Rebinds = %d, want 1", stats.Rebinds)
	}
}

func TestHeartbeatInterval(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{RemoteAddr: recv.LocalAddr().String()}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	hb := NewHeartbeat(send, 10*time.Second)
	now := time.Now()

	if err := hb.Tick(now); err != nil {
		t.Fatalf("First tick failed: %v", err)
	}
	if err := hb.Tick(now.Add(time.Second)); err != nil {
		t.Fatalf("Early tick failed: %v", err)
	}

	// Only the first tick was due, so exactly one probe left the socket.
	if got := send.GetStats().Sent; got != 1 {
		t.Errorf("Sent = %d, want 1", got)
	}

	if err := hb.Tick(now.Add(11 * time.Second)); err != nil {
		t.Fatalf("Due tick failed: %v", err)
	}
	if got := send.GetStats().Sent; got != 2 {
		t.Errorf("Sent = %d, want 2", got)
	}
}

func TestHeartbeatTouchDefersProbe(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{RemoteAddr: recv.LocalAddr().String()}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	hb := NewHeartbeat(send, 10*time.Second)
	now := time.Now()

	hb.Touch(now.Add(5 * time.Second))
	if err := hb.Tick(now.Add(10 * time.Second)); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if got := send.GetStats().Sent; got != 0 {
		t.Errorf("Sent = %d after touch, want 0", got)
	}
}

func TestBlockSenderRoundTrip(t *testing.T) {
	recv, err := Open(Config{LocalAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open receiver: %v", err)
	}
	defer recv.Close()

	send, err := Open(Config{RemoteAddr: recv.LocalAddr().String()}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sender: %v", err)
	}
	defer send.Close()

	sender := NewBlockSender(send, 512)
	samples := []int16{100, -100, 32767, -32768}
	if err := sender.SendBlock(samples); err != nil {
		t.Fatalf("SendBlock failed: %v", err)
	}
	if err := sender.SendControl(protocol.Control{Token: protocol.TokenEnd}); err != nil {
		t.Fatalf("SendControl failed: %v", err)
	}

	buf := make([]byte, 1500)
	var datagrams [][]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(datagrams) < 2 && time.Now().Before(deadline) {
		n, _, ok, err := recv.Poll(buf)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if ok {
			datagrams = append(datagrams, append([]byte(nil), buf[:n]...))
			continue
		}
		time.Sleep(time.Millisecond)
	}

	if len(datagrams) != 2 {
		t.Fatalf("Received %d datagrams, want 2", len(datagrams))
	}

	want := []byte{100, 0, 156, 255, 255, 127, 0, 128}
	if !bytes.Equal(datagrams[0], want) {
		t.Errorf("PCM datagram = %v, want %v", datagrams[0], want)
	}
	if string(datagrams[1]) != "END" {
		t.Errorf("Control datagram = %q, want %q", datagrams[1], "END")
	}
}

func mustUDPAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatalf("Failed to resolve %q: %v", s, err)
	}
	return addr
}
