package playback

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MarLuar/Mirror/internal/protocol"
)

// fakeOutput records every write so tests can inspect what was rendered.
type fakeOutput struct {
	channels int
	writes   [][]int16
	flushes  int
	writeErr error
}

func (f *fakeOutput) Write(samples []int16, timeout time.Duration) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]int16(nil), samples...))
	return nil
}

func (f *fakeOutput) Flush() error {
	f.flushes++
	return nil
}

func (f *fakeOutput) Channels() int { return f.channels }
func (f *fakeOutput) Close() error  { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconstructor(out *fakeOutput) *Reconstructor {
	return New(Config{
		SourceChannels: 2,
		SilenceWindow:  2 * time.Second,
		SampleRate:     44100,
	}, out, testLogger())
}

func TestStartEntersStreaming(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)
	now := time.Now()

	if r.State() != StateIdle {
		t.Fatalf("Initial state = %v, want idle", r.State())
	}

	r.HandleControl(protocol.Control{Token: protocol.TokenStart}, now)
	if r.State() != StateStreaming {
		t.Errorf("State after START = %v, want streaming", r.State())
	}
}

func TestFirstPayloadEntersStreaming(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)

	r.HandlePayload([]byte{0x10, 0x00, 0x20, 0x00}, time.Now())
	if r.State() != StateStreaming {
		t.Errorf("State after payload = %v, want streaming", r.State())
	}
	if len(out.writes) != 1 {
		t.Fatalf("Writes = %d, want 1", len(out.writes))
	}
}

func TestStereoDownmixToMonoOutput(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)

	// Two stereo frames: (100, 300) and (-200, -400).
	data := []byte{100, 0, 44, 1, 56, 255, 112, 254}
	r.HandlePayload(data, time.Now())

	if len(out.writes) != 1 {
		t.Fatalf("Writes = %d, want 1", len(out.writes))
	}
	got := out.writes[0]
	want := []int16{200, -300}
	if len(got) != len(want) {
		t.Fatalf("Write length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoPassthroughToStereoOutput(t *testing.T) {
	out := &fakeOutput{channels: 2}
	r := newTestReconstructor(out)

	data := []byte{100, 0, 44, 1}
	r.HandlePayload(data, time.Now())

	if len(out.writes) != 1 {
		t.Fatalf("Writes = %d, want 1", len(out.writes))
	}
	if got := out.writes[0]; len(got) != 2 || got[0] != 100 || got[1] != 300 {
		t.Errorf("Write = %v, want [100 300]", got)
	}
}

func TestEndReturnsToIdleAndFlushes(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)
	now := time.Now()

	r.HandleControl(protocol.Control{Token: protocol.TokenStart}, now)
	r.HandleControl(protocol.Control{Token: protocol.TokenEnd}, now)

	if r.State() != StateIdle {
		t.Errorf("State after END = %v, want idle", r.State())
	}
	if out.flushes != 1 {
		t.Errorf("Flushes = %d, want 1", out.flushes)
	}

	// Repeated END tokens from the sender are no-ops once idle.
	r.HandleControl(protocol.Control{Token: protocol.TokenEnd}, now)
	if out.flushes != 1 {
		t.Errorf("Flushes after duplicate END = %d, want 1", out.flushes)
	}
}

func TestSilenceWindowTimeout(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)
	now := time.Now()

	r.HandlePayload([]byte{0x01, 0x00}, now)

	// A tick just inside the window keeps the session alive.
	r.Tick(now.Add(2*time.Second - time.Millisecond))
	if r.State() != StateStreaming {
		t.Fatalf("State inside window = %v, want streaming", r.State())
	}

	r.Tick(now.Add(2 * time.Second))
	if r.State() != StateIdle {
		t.Errorf("State after window = %v, want idle", r.State())
	}
	if got := r.GetStats().SilenceTimeouts; got != 1 {
		t.Errorf("SilenceTimeouts = %d, want 1", got)
	}
}

func TestPayloadRestampsWindow(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)
	now := time.Now()

	r.HandlePayload([]byte{0x01, 0x00}, now)
	r.HandlePayload([]byte{0x01, 0x00}, now.Add(1500*time.Millisecond))

	// The window restarts from the second payload's arrival.
	r.Tick(now.Add(3 * time.Second))
	if r.State() != StateStreaming {
		t.Errorf("State = %v, want streaming after restamp", r.State())
	}
}

func TestDroppedBlockCounted(t *testing.T) {
	out := &fakeOutput{channels: 1, writeErr: ErrWriteTimeout}
	r := newTestReconstructor(out)

	r.HandlePayload([]byte{0x01, 0x00}, time.Now())

	stats := r.GetStats()
	if stats.BlocksDropped != 1 {
		t.Errorf("BlocksDropped = %d, want 1", stats.BlocksDropped)
	}
	if stats.BlocksPlayed != 0 {
		t.Errorf("BlocksPlayed = %d, want 0", stats.BlocksPlayed)
	}
}

func TestBeepPlaysTone(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := New(Config{
		SourceChannels: 2,
		SampleRate:     44100,
		BeepDuration:   100 * time.Millisecond,
		BeepFrequency:  1000,
	}, out, testLogger())

	r.HandleControl(protocol.Control{Token: protocol.TokenBeep}, time.Now())

	if len(out.writes) != 1 {
		t.Fatalf("Writes = %d, want 1", len(out.writes))
	}
	if got, want := len(out.writes[0]), 4410; got != want {
		t.Errorf("Tone length = %d samples, want %d", got, want)
	}

	var nonZero bool
	for _, s := range out.writes[0] {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("Tone is all zeros")
	}

	if r.State() != StateIdle {
		t.Errorf("State after BEEP = %v, want idle", r.State())
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	out := &fakeOutput{channels: 1}
	r := newTestReconstructor(out)

	// Odd byte count cannot be 16-bit PCM.
	r.HandlePayload([]byte{0x01, 0x00, 0x02}, time.Now())
	if len(out.writes) != 0 {
		t.Errorf("Writes = %d, want 0 for malformed payload", len(out.writes))
	}
}
