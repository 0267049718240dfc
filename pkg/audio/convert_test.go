package audio

import (
	"math"
	"testing"
	"time"
)

func TestFloat32ToInt16_Clamping(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.5, 1.5, -1.5}
	out := Float32ToInt16(in)

	if out[0] != 0 {
		t.Errorf("out[0] = %d, want 0", out[0])
	}
	if out[3] != 32767 {
		t.Errorf("out[3] = %d, want clamped 32767", out[3])
	}
	if out[4] != -32768 {
		t.Errorf("out[4] = %d, want clamped -32768", out[4])
	}
}

func TestInt16ToFloat32_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 16384, -16384, 32767, -32768}
	out := Int16ToFloat32(in)

	for i, f := range out {
		if f < -1.0 || f > 1.0 {
			t.Errorf("out[%d] = %f outside [-1, 1]", i, f)
		}
	}
	if math.Abs(float64(out[1])-0.5) > 0.001 {
		t.Errorf("out[1] = %f, want ~0.5", out[1])
	}
}

func TestFloat32ToPCMBytes_LittleEndian(t *testing.T) {
	t.Parallel()

	// 0.5 → 16383 (0x3FFF) → bytes FF 3F little-endian.
	out := Float32ToPCMBytes([]float32{0.5})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	v := int16(uint16(out[0]) | uint16(out[1])<<8)
	if math.Abs(float64(v)-16383) > 1 {
		t.Errorf("decoded %d, want ~16383", v)
	}
}

func TestPeakAndRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  []float32
		wantPeak float64
		wantRMS  float64
	}{
		{name: "silence", samples: []float32{0, 0, 0, 0}, wantPeak: 0, wantRMS: 0},
		{name: "constant", samples: []float32{0.5, -0.5, 0.5, -0.5}, wantPeak: 0.5, wantRMS: 0.5},
		{name: "single spike", samples: []float32{0, 0, 0, 1}, wantPeak: 1, wantRMS: 0.5},
		{name: "empty", samples: nil, wantPeak: 0, wantRMS: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Peak(tt.samples); math.Abs(got-tt.wantPeak) > 1e-9 {
				t.Errorf("Peak = %f, want %f", got, tt.wantPeak)
			}
			if got := RMS(tt.samples); math.Abs(got-tt.wantRMS) > 1e-9 {
				t.Errorf("RMS = %f, want %f", got, tt.wantRMS)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := Frame{Samples: make([]float32, 8000), SampleRate: 16000}
	if got := f.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}

	empty := Frame{}
	if got := empty.Duration(); got != 0 {
		t.Errorf("Duration of zero frame = %v, want 0", got)
	}
}
