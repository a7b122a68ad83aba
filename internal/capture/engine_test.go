package capture

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFormat() Format {
	return Format{SampleRate: 16000, BitsPerSample: 16, Channels: 1}
}

func TestOpenFailsWhenDeviceUnavailable(t *testing.T) {
	device := &ToneDevice{FailOpen: true}

	_, err := Open(device, Config{Format: testFormat()}, testLogger())
	if err == nil {
		t.Fatal("expected error when device open fails")
	}
	if !errors.Is(err, ErrPeripheralUnavailable) {
		t.Errorf("expected ErrPeripheralUnavailable, got %v", err)
	}
}

func TestOpenRejectsBadGeometry(t *testing.T) {
	if _, err := Open(&ToneDevice{}, Config{Format: Format{SampleRate: 0, BitsPerSample: 16, Channels: 1}}, testLogger()); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := Open(&ToneDevice{}, Config{Format: Format{SampleRate: 16000, BitsPerSample: 8, Channels: 1}}, testLogger()); err == nil {
		t.Error("expected error for 8-bit depth")
	}
}

func TestReadBlockFillsCallerBuffer(t *testing.T) {
	engine, err := Open(&ToneDevice{}, Config{Format: testFormat()}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	block := make([]int16, 512)
	n, err := engine.ReadBlock(block)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if n != len(block) {
		t.Errorf("expected %d samples, got %d", len(block), n)
	}

	// A sine tone must produce non-zero samples somewhere in the block.
	nonzero := false
	for _, s := range block {
		if s != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Error("block is all zeros")
	}
}

func TestReadBlockAppliesGainWithSaturation(t *testing.T) {
	device := &ToneDevice{Amplitude: 0.9}
	engine, err := Open(device, Config{Format: testFormat(), GainBits: 2}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	block := make([]int16, 512)
	if _, err := engine.ReadBlock(block); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}

	saturated := 0
	for _, s := range block {
		if s == math.MaxInt16 || s == math.MinInt16 {
			saturated++
		}
	}
	// A 0.9 amplitude tone shifted left twice must clip.
	if saturated == 0 {
		t.Error("expected clipped samples with gain 2 on a near-full-scale tone")
	}
}

func TestReadBlockRetriesNotReady(t *testing.T) {
	device := &ToneDevice{NotReadyReads: 3}
	engine, err := Open(device, Config{Format: testFormat(), ReadTimeout: 200 * time.Millisecond}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	block := make([]int16, 128)
	n, err := engine.ReadBlock(block)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if n != len(block) {
		t.Errorf("expected a full block after transient not-ready, got %d samples", n)
	}
}

func TestReadBlockTimesOutWhenNeverReady(t *testing.T) {
	device := &ToneDevice{NotReadyReads: 1 << 30}
	engine, err := Open(device, Config{Format: testFormat(), ReadTimeout: 20 * time.Millisecond}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	block := make([]int16, 128)
	n, err := engine.ReadBlock(block)
	if err != nil {
		t.Fatalf("ReadBlock returned error on timeout: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 samples on timeout, got %d", n)
	}
}

func TestReadBlockAfterClose(t *testing.T) {
	engine, err := Open(&ToneDevice{}, Config{Format: testFormat()}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	engine.Close()

	if _, err := engine.ReadBlock(make([]int16, 16)); err == nil {
		t.Error("expected error reading from closed engine")
	}
}

func TestBlockSamples(t *testing.T) {
	engine, err := Open(&ToneDevice{}, Config{Format: testFormat()}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	if got := engine.BlockSamples(20 * time.Millisecond); got != 320 {
		t.Errorf("expected 320 samples for 20ms at 16kHz, got %d", got)
	}
}
