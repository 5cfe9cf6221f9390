package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// FloatToInt16 converts normalized float samples to 16-bit signed PCM.
// Samples are clamped to [-1, 1] before scaling. When dst has sufficient
// capacity it is reused, otherwise a new buffer is allocated.
func FloatToInt16(samples []float32, dst []int16) []int16 {
	if cap(dst) >= len(samples) {
		dst = dst[:len(samples)]
	} else {
		dst = make([]int16, len(samples))
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s >= 0 {
			dst[i] = int16(s * 0x7FFF)
		} else {
			dst[i] = int16(s * 0x8000)
		}
	}
	return dst
}

// Int16ToFloat converts 16-bit signed PCM to normalized float samples,
// symmetric with FloatToInt16.
func Int16ToFloat(pcm []int16, dst []float32) []float32 {
	if cap(dst) >= len(pcm) {
		dst = dst[:len(pcm)]
	} else {
		dst = make([]float32, len(pcm))
	}
	for i, s := range pcm {
		if s >= 0 {
			dst[i] = float32(s) / 0x7FFF
		} else {
			dst[i] = float32(s) / 0x8000
		}
	}
	return dst
}

// Int16ToBytes serializes PCM samples as little-endian bytes.
func Int16ToBytes(pcm []int16, dst []byte) []byte {
	n := len(pcm) * 2
	if cap(dst) >= n {
		dst = dst[:n]
	} else {
		dst = make([]byte, n)
	}
	for i, s := range pcm {
		dst[2*i] = byte(s)
		dst[2*i+1] = byte(uint16(s) >> 8)
	}
	return dst
}

// BytesToInt16 parses little-endian PCM bytes. A trailing odd byte is ignored.
func BytesToInt16(b []byte, dst []int16) []int16 {
	n := len(b) / 2
	if cap(dst) >= n {
		dst = dst[:n]
	} else {
		dst = make([]int16, n)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return dst
}

// EncodeFrame encodes binary PCM for transmission over a text-safe channel.
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame is the inverse of EncodeFrame. Round-trips are exact for all
// byte values; malformed input fails with a decode error.
func DecodeFrame(encoded string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio frame: %w", err)
	}
	return b, nil
}

// RMSEnergy computes the root-mean-square energy of 16-bit little-endian PCM.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 avoids overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}
