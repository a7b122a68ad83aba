package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrWriteTimeout reports that an output could not accept a block within the
// allowed wait. The caller drops the block and moves on; playback loss is a
// glitch, not a failure.
var ErrWriteTimeout = errors.New("playback write timeout")

// Output accepts PCM blocks for rendering. Write waits at most timeout for
// the sink to accept the block and returns ErrWriteTimeout otherwise. Flush
// pushes silence through the sink so stale audio does not linger between
// sessions.
type Output interface {
	Write(samples []int16, timeout time.Duration) error
	Flush() error
	Channels() int
	Close() error
}

// PortAudioOutput renders PCM through the default host audio device.
type PortAudioOutput struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	channels   int
	mu         sync.Mutex
}

// OpenPortAudioOutput initializes the host audio system and opens an output
// stream in blocking write mode.
func OpenPortAudioOutput(sampleRate, channels, blockSamples int) (*PortAudioOutput, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio system: %w", err)
	}

	o := &PortAudioOutput{
		buf:        make([]int16, blockSamples),
		sampleRate: sampleRate,
		channels:   channels,
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), blockSamples/channels, &o.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	o.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return o, nil
}

// Write renders one block. The portaudio blocking API has no per-call
// deadline, so the timeout bounds only the underflow-retry path; a write the
// host accepts immediately ignores it.
func (o *PortAudioOutput) Write(samples []int16, timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(samples) > len(o.buf) {
		return fmt.Errorf("block of %d samples exceeds output buffer of %d", len(samples), len(o.buf))
	}

	n := copy(o.buf, samples)
	for i := n; i < len(o.buf); i++ {
		o.buf[i] = 0
	}

	deadline := time.Now().Add(timeout)
	for {
		err := o.stream.Write()
		if err == nil {
			return nil
		}
		if err == portaudio.OutputUnderflowed {
			if time.Now().After(deadline) {
				return ErrWriteTimeout
			}
			continue
		}
		return fmt.Errorf("output write failed: %w", err)
	}
}

// Flush writes one buffer of silence.
func (o *PortAudioOutput) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.buf {
		o.buf[i] = 0
	}
	if err := o.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		return fmt.Errorf("output flush failed: %w", err)
	}
	return nil
}

// Channels returns the sink's channel count.
func (o *PortAudioOutput) Channels() int {
	return o.channels
}

// Close stops the stream and releases the audio system.
func (o *PortAudioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream != nil {
		o.stream.Stop()
		o.stream.Close()
		o.stream = nil
	}
	return portaudio.Terminate()
}
