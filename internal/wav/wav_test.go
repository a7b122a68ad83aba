package wav

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteHeaderSize(t *testing.T) {
	h, err := NewHeader(16000, 16, 1)
	if err != nil {
		t.Fatalf("NewHeader failed: %v", err)
	}

	var buf bytes.Buffer
	if err := h.WriteHeader(&buf, 0); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}

	if buf.Len() != HeaderSize {
		t.Errorf("expected %d header bytes, got %d", HeaderSize, buf.Len())
	}
}

func TestHeaderByteRate(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		wantRate   uint32
	}{
		{"16k mono", 16000, 1, 32000},
		{"44.1k stereo", 44100, 2, 176400},
		{"8k mono", 8000, 1, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHeader(tt.sampleRate, 16, tt.channels)
			if err != nil {
				t.Fatalf("NewHeader failed: %v", err)
			}
			if h.ByteRate != tt.wantRate {
				t.Errorf("expected byte rate %d, got %d", tt.wantRate, h.ByteRate)
			}
		})
	}
}

func TestNewHeaderRejectsBadGeometry(t *testing.T) {
	if _, err := NewHeader(0, 16, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := NewHeader(16000, 8, 1); err == nil {
		t.Error("expected error for 8-bit depth")
	}
	if _, err := NewHeader(16000, 16, 3); err == nil {
		t.Error("expected error for 3 channels")
	}
}

func TestFinalizeRoundTrip(t *testing.T) {
	h, err := NewHeader(16000, 16, 1)
	if err != nil {
		t.Fatalf("NewHeader failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer f.Close()

	// Placeholder header, then PCM data, then patch.
	if err := h.WriteHeader(f, 0); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}

	pcmData := make([]byte, 64000)
	for i := range pcmData {
		pcmData[i] = byte(i)
	}
	if _, err := f.Write(pcmData); err != nil {
		t.Fatalf("write data failed: %v", err)
	}

	if err := h.Finalize(f, uint32(len(pcmData))); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Cursor must be back at end-of-file.
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if pos != int64(HeaderSize+len(pcmData)) {
		t.Errorf("expected cursor at %d, got %d", HeaderSize+len(pcmData), pos)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}

	if len(data) != HeaderSize+len(pcmData) {
		t.Fatalf("expected file size %d, got %d", HeaderSize+len(pcmData), len(data))
	}

	got, err := ReadHeader(data)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	if got.Subchunk2Size != uint32(len(pcmData)) {
		t.Errorf("expected data size %d, got %d", len(pcmData), got.Subchunk2Size)
	}
	if got.ChunkSize != uint32(len(pcmData)+HeaderSize-8) {
		t.Errorf("expected chunk size %d, got %d", len(pcmData)+HeaderSize-8, got.ChunkSize)
	}
	if got.ByteRate != 32000 {
		t.Errorf("expected byte rate 32000, got %d", got.ByteRate)
	}

	// PCM payload must be untouched by the patch.
	if !bytes.Equal(data[HeaderSize:], pcmData) {
		t.Error("PCM data corrupted by finalize")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := ReadHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short data")
	}

	bad := make([]byte, 50)
	copy(bad[0:4], "FAKE")
	if _, err := ReadHeader(bad); err == nil {
		t.Error("expected error for invalid RIFF tag")
	}
}

func TestValidateRejectsZeroGeometry(t *testing.T) {
	h, err := NewHeader(16000, 16, 1)
	if err != nil {
		t.Fatalf("NewHeader failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Header)
	}{
		{"zero channels", func(h *Header) { h.NumChannels = 0; h.ByteRate = 0 }},
		{"zero bit depth", func(h *Header) { h.BitsPerSample = 0; h.ByteRate = 0 }},
		{"zero sample rate", func(h *Header) { h.SampleRate = 0; h.ByteRate = 0 }},
		{"three channels", func(h *Header) { h.NumChannels = 3; h.ByteRate = 96000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := h
			tt.mutate(&bad)

			if err := bad.Validate(); err == nil {
				t.Error("expected validation error")
			}

			// A crafted on-disk file with this header must be rejected by
			// Inspect, not crash it.
			var buf bytes.Buffer
			if err := bad.WriteHeader(&buf, 0); err != nil {
				t.Fatalf("WriteHeader failed: %v", err)
			}
			if _, err := Inspect(buf.Bytes()); err == nil {
				t.Error("expected Inspect to reject the header")
			}
		})
	}
}

func TestInspect(t *testing.T) {
	h, err := NewHeader(16000, 16, 1)
	if err != nil {
		t.Fatalf("NewHeader failed: %v", err)
	}

	var buf bytes.Buffer
	// 2 seconds of 16kHz mono 16-bit is 64000 bytes.
	if err := h.WriteHeader(&buf, 64000); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	buf.Write(make([]byte, 64000))

	info, err := Inspect(buf.Bytes())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if info.Duration != 2.0 {
		t.Errorf("expected 2s duration, got %f", info.Duration)
	}
	if info.DataSize != 64000 {
		t.Errorf("expected 64000 data bytes, got %d", info.DataSize)
	}
	if info.Channels != 1 {
		t.Errorf("expected mono, got %d channels", info.Channels)
	}
}
