package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed size of the canonical uncompressed-PCM container
// header. The remote transcription service parses this layout, so the byte
// and field order are part of the external contract.
const HeaderSize = 44

// Header represents the 44-byte RIFF/WAVE header.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewHeader builds a header for the given sample geometry with a zero data
// size. The size fields are filled in later by Finalize.
func NewHeader(sampleRate, bitsPerSample, channels int) (Header, error) {
	if sampleRate <= 0 {
		return Header{}, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if bitsPerSample != 16 {
		return Header{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", bitsPerSample)
	}
	if channels < 1 || channels > 2 {
		return Header{}, fmt.Errorf("unsupported channel count: %d (only mono or stereo)", channels)
	}

	nc := uint16(channels)
	bps := uint16(bitsPerSample)

	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize - 8,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   nc,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(nc) * uint32(bps) / 8,
		BlockAlign:    nc * bps / 8,
		BitsPerSample: bps,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: 0,
	}, nil
}

// WriteHeader writes the header with the given data size at the writer's
// current position. At session start this is called with dataSize 0 as a
// placeholder; the true size is patched in by Finalize after capture.
func (h Header) WriteHeader(w io.Writer, dataSize uint32) error {
	h.Subchunk2Size = dataSize
	h.ChunkSize = dataSize + HeaderSize - 8

	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	return nil
}

// Finalize seeks back to the start of the container, rewrites the header with
// the true data size, and leaves the write cursor at end-of-file. The
// storage must support seek-and-overwrite.
func (h Header) Finalize(ws io.WriteSeeker, dataSize uint32) error {
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to header: %w", err)
	}

	if err := h.WriteHeader(ws, dataSize); err != nil {
		return err
	}

	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of file: %w", err)
	}

	return nil
}

// ReadHeader parses a header from the first 44 bytes of data.
func ReadHeader(data []byte) (Header, error) {
	var h Header

	if len(data) < HeaderSize {
		return h, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if err := h.Validate(); err != nil {
		return h, err
	}

	return h, nil
}

// Validate checks the header's structure and internal size consistency.
func (h Header) Validate() error {
	if string(h.ChunkID[:]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(h.Format[:]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(h.Subchunk1ID[:]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(h.Subchunk2ID[:]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if h.AudioFormat != 1 {
		return fmt.Errorf("unsupported audio format: %d (only PCM is supported)", h.AudioFormat)
	}
	if h.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate: 0")
	}
	if h.NumChannels < 1 || h.NumChannels > 2 {
		return fmt.Errorf("unsupported channel count: %d (only mono or stereo)", h.NumChannels)
	}
	if h.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", h.BitsPerSample)
	}
	if h.ChunkSize != h.Subchunk2Size+HeaderSize-8 {
		return fmt.Errorf("inconsistent sizes: chunk_size=%d, data_size=%d", h.ChunkSize, h.Subchunk2Size)
	}

	wantByteRate := h.SampleRate * uint32(h.NumChannels) * uint32(h.BitsPerSample) / 8
	if h.ByteRate != wantByteRate {
		return fmt.Errorf("inconsistent byte rate: got %d, want %d", h.ByteRate, wantByteRate)
	}

	return nil
}

// Info summarizes a parsed container for diagnostics and the status API.
type Info struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// Inspect parses and validates a header and returns its summary.
func Inspect(data []byte) (*Info, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	bytesPerFrame := uint32(h.NumChannels) * uint32(h.BitsPerSample) / 8
	frames := h.Subchunk2Size / bytesPerFrame

	return &Info{
		SampleRate:    h.SampleRate,
		Channels:      h.NumChannels,
		BitsPerSample: h.BitsPerSample,
		Duration:      float64(frames) / float64(h.SampleRate),
		DataSize:      h.Subchunk2Size,
	}, nil
}
