package pcm

import (
	"fmt"
	"math"
)

// ApplyGain amplifies samples in place by left-shifting each one gainBits
// positions, saturating at the int16 range instead of wrapping. This is the
// same soft clipping the capture firmware applies, so recordings stay
// bit-compatible with files produced by earlier builds. gainBits of 0 leaves
// the samples untouched.
func ApplyGain(samples []int16, gainBits uint) {
	if gainBits == 0 {
		return
	}

	for i, s := range samples {
		shifted := int32(s) << gainBits
		if shifted > math.MaxInt16 {
			shifted = math.MaxInt16
		} else if shifted < math.MinInt16 {
			shifted = math.MinInt16
		}
		samples[i] = int16(shifted)
	}
}

// DownmixStereo averages interleaved stereo samples into mono:
// mono[i] = (left + right) / 2 with integer truncation, no dithering.
// It writes into the caller's mono buffer and returns the number of mono
// samples produced. The stereo slice must hold complete L/R pairs and mono
// must be at least half its length.
func DownmixStereo(stereo []int16, mono []int16) (int, error) {
	if len(stereo)%2 != 0 {
		return 0, fmt.Errorf("stereo sample count must be even, got %d", len(stereo))
	}

	frames := len(stereo) / 2
	if len(mono) < frames {
		return 0, fmt.Errorf("mono buffer too small: need %d samples, have %d", frames, len(mono))
	}

	for i := 0; i < frames; i++ {
		left := int32(stereo[i*2])
		right := int32(stereo[i*2+1])
		mono[i] = int16((left + right) / 2)
	}

	return frames, nil
}

// BytesToSamples converts little-endian 16-bit PCM bytes into the caller's
// sample buffer and returns the number of samples written.
func BytesToSamples(data []byte, samples []int16) (int, error) {
	if len(data)%2 != 0 {
		return 0, fmt.Errorf("audio data length must be even (got %d bytes)", len(data))
	}

	count := len(data) / 2
	if len(samples) < count {
		return 0, fmt.Errorf("sample buffer too small: need %d samples, have %d", count, len(samples))
	}

	for i := 0; i < count; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}

	return count, nil
}

// SamplesToBytes serializes samples as little-endian 16-bit PCM into the
// caller's byte buffer and returns the number of bytes written.
func SamplesToBytes(samples []int16, data []byte) (int, error) {
	need := len(samples) * 2
	if len(data) < need {
		return 0, fmt.Errorf("byte buffer too small: need %d bytes, have %d", need, len(data))
	}

	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}

	return need, nil
}
