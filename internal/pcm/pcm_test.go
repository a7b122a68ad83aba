package pcm

import (
	"math"
	"testing"
)

func TestApplyGainZeroBitsIsNoOp(t *testing.T) {
	samples := []int16{0, 1, -1, 12345, -12345, math.MaxInt16, math.MinInt16}
	original := make([]int16, len(samples))
	copy(original, samples)

	ApplyGain(samples, 0)

	for i := range samples {
		if samples[i] != original[i] {
			t.Errorf("sample %d changed with gain 0: %d -> %d", i, original[i], samples[i])
		}
	}
}

func TestApplyGainShifts(t *testing.T) {
	samples := []int16{100, -100, 0}
	ApplyGain(samples, 3)

	if samples[0] != 800 {
		t.Errorf("expected 800, got %d", samples[0])
	}
	if samples[1] != -800 {
		t.Errorf("expected -800, got %d", samples[1])
	}
	if samples[2] != 0 {
		t.Errorf("expected 0, got %d", samples[2])
	}
}

func TestApplyGainSaturates(t *testing.T) {
	samples := []int16{30000, -30000, math.MaxInt16, math.MinInt16}
	ApplyGain(samples, 2)

	for i, s := range samples {
		if s > math.MaxInt16 || s < math.MinInt16 {
			t.Fatalf("sample %d out of range: %d", i, s)
		}
	}

	if samples[0] != math.MaxInt16 {
		t.Errorf("expected positive saturation to %d, got %d", math.MaxInt16, samples[0])
	}
	if samples[1] != math.MinInt16 {
		t.Errorf("expected negative saturation to %d, got %d", math.MinInt16, samples[1])
	}
}

func TestDownmixStereo(t *testing.T) {
	tests := []struct {
		name   string
		stereo []int16
		want   []int16
	}{
		{"opposite cancels", []int16{1000, -1000}, []int16{0}},
		{"equal passes through", []int16{500, 500, -700, -700}, []int16{500, -700}},
		{"average truncates", []int16{3, 4}, []int16{3}},
		{"negative truncates toward zero", []int16{-3, -4}, []int16{-3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mono := make([]int16, len(tt.stereo)/2)
			n, err := DownmixStereo(tt.stereo, mono)
			if err != nil {
				t.Fatalf("DownmixStereo failed: %v", err)
			}
			if n != len(tt.want) {
				t.Fatalf("expected %d mono samples, got %d", len(tt.want), n)
			}
			for i := range tt.want {
				if mono[i] != tt.want[i] {
					t.Errorf("mono[%d]: expected %d, got %d", i, tt.want[i], mono[i])
				}
			}
		})
	}
}

func TestDownmixStereoOddInput(t *testing.T) {
	mono := make([]int16, 2)
	if _, err := DownmixStereo([]int16{1, 2, 3}, mono); err == nil {
		t.Error("expected error for odd stereo sample count")
	}
}

func TestByteSampleRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 256, -256, math.MaxInt16, math.MinInt16}

	data := make([]byte, len(samples)*2)
	n, err := SamplesToBytes(samples, data)
	if err != nil {
		t.Fatalf("SamplesToBytes failed: %v", err)
	}
	if n != len(data) {
		t.Fatalf("expected %d bytes, got %d", len(data), n)
	}

	back := make([]int16, len(samples))
	count, err := BytesToSamples(data, back)
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	if count != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), count)
	}

	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestBytesToSamplesOddLength(t *testing.T) {
	samples := make([]int16, 2)
	if _, err := BytesToSamples([]byte{1, 2, 3}, samples); err == nil {
		t.Error("expected error for odd byte length")
	}
}
