package capture

import (
	"math"
)

// ToneDevice is a synthetic input peripheral producing a fixed sine tone.
// Used by the device simulator and tests; it never blocks.
type ToneDevice struct {
	Frequency float64 // Hz, defaults to 440
	Amplitude float64 // 0..1 of full scale, defaults to 0.5

	format Format
	phase  float64
	opened bool

	// FailOpen forces Open to fail, for exercising the fatal path.
	FailOpen bool
	// NotReadyReads makes the first N reads return ErrNotReady.
	NotReadyReads int
}

func (d *ToneDevice) Open(f Format) error {
	if d.FailOpen {
		return ErrPeripheralUnavailable
	}

	if d.Frequency == 0 {
		d.Frequency = 440
	}
	if d.Amplitude == 0 {
		d.Amplitude = 0.5
	}

	d.format = f
	d.opened = true
	return nil
}

func (d *ToneDevice) Read(dst []int16) (int, error) {
	if !d.opened {
		return 0, ErrPeripheralUnavailable
	}

	if d.NotReadyReads > 0 {
		d.NotReadyReads--
		return 0, ErrNotReady
	}

	step := 2 * math.Pi * d.Frequency / float64(d.format.SampleRate)
	scale := d.Amplitude * float64(math.MaxInt16)

	for i := range dst {
		dst[i] = int16(scale * math.Sin(d.phase))
		d.phase += step
	}

	return len(dst), nil
}

func (d *ToneDevice) Close() error {
	d.opened = false
	return nil
}
