package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures from the default system microphone through
// PortAudio. One initialized stream per device; not safe for concurrent
// Read calls.
type PortAudioDevice struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewPortAudioDevice returns an unopened PortAudio input device.
func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

// Open initializes PortAudio and opens the default input stream with the
// requested geometry.
func (d *PortAudioDevice) Open(f Format) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio initialize: %w", err)
	}

	// The stream reads into this fixed buffer; Read copies out of it so the
	// engine's caller-supplied block stays the only per-read destination.
	d.buf = make([]int16, 1024*f.Channels)

	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), len(d.buf), d.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("portaudio start stream: %w", err)
	}

	d.stream = stream
	return nil
}

// Read fills dst from the input stream. Overflow (the host loop fell behind
// the hardware) is reported as ErrNotReady so the engine retries.
func (d *PortAudioDevice) Read(dst []int16) (int, error) {
	if d.stream == nil {
		return 0, fmt.Errorf("portaudio stream not open")
	}

	if err := d.stream.Read(); err != nil {
		if err == portaudio.InputOverflowed {
			return 0, ErrNotReady
		}
		return 0, fmt.Errorf("portaudio read: %w", err)
	}

	n := copy(dst, d.buf)
	return n, nil
}

// Close stops the stream and shuts PortAudio down.
func (d *PortAudioDevice) Close() error {
	if d.stream == nil {
		return nil
	}

	err := d.stream.Stop()
	if cerr := d.stream.Close(); err == nil {
		err = cerr
	}
	d.stream = nil

	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}

	return err
}
