package audio

import (
	"math"
	"testing"
)

func TestFloatToInt16_Clamping(t *testing.T) {
	tests := []struct {
		name     string
		in       float32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive full scale", 1.0, 0x7FFF},
		{"negative full scale", -1.0, -0x8000},
		{"above range clamps", 1.5, 0x7FFF},
		{"below range clamps", -1.5, -0x8000},
		{"half scale", 0.5, 0x3FFF},
	}

	for _, tt := range tests {
		out := FloatToInt16([]float32{tt.in}, nil)
		if out[0] != tt.expected {
			t.Errorf("%s: FloatToInt16(%v) = %d, want %d", tt.name, tt.in, out[0], tt.expected)
		}
	}
}

func TestInt16ToFloat_Symmetric(t *testing.T) {
	for _, v := range []int16{0, 1, -1, 1000, -1000, 0x7FFF, -0x8000} {
		f := Int16ToFloat([]int16{v}, nil)
		back := FloatToInt16(f, nil)
		if back[0] != v {
			t.Errorf("round trip %d -> %v -> %d", v, f[0], back[0])
		}
	}
}

func TestBufferReuse(t *testing.T) {
	dst16 := make([]int16, 8)
	out := FloatToInt16([]float32{0.1, 0.2}, dst16)
	if &out[0] != &dst16[0] {
		t.Error("FloatToInt16 did not reuse dst with sufficient capacity")
	}

	dstF := make([]float32, 8)
	outF := Int16ToFloat([]int16{5, 6}, dstF)
	if &outF[0] != &dstF[0] {
		t.Error("Int16ToFloat did not reuse dst with sufficient capacity")
	}
}

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	pcm := make([]byte, 256)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	decoded, err := DecodeFrame(EncodeFrame(pcm))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("length mismatch: %d != %d", len(decoded), len(pcm))
	}
	for i := range pcm {
		if decoded[i] != pcm[i] {
			t.Fatalf("byte %d: %d != %d", i, decoded[i], pcm[i])
		}
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	if _, err := DecodeFrame("not base64!!!"); err == nil {
		t.Error("expected error for malformed transport text")
	}
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("empty input: got %v, want 0", got)
	}

	// Full-scale square wave has RMS of ~1.0.
	pcm := Int16ToBytes([]int16{0x7FFF, -0x8000, 0x7FFF, -0x8000}, nil)
	if got := RMSEnergy(pcm); math.Abs(got-1.0) > 0.01 {
		t.Errorf("square wave RMS: got %v, want ~1.0", got)
	}

	silence := Int16ToBytes(make([]int16, 16), nil)
	if got := RMSEnergy(silence); got != 0 {
		t.Errorf("silence RMS: got %v, want 0", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	pcm := Int16ToBytes([]int16{100, -0x8000, 200}, nil)
	if got := PeakAmplitude(pcm); math.Abs(got-1.0) > 0.001 {
		t.Errorf("peak: got %v, want 1.0", got)
	}
}
