// Package codec converts normalized floating-point audio blocks into 16-bit
// little-endian PCM wire frames and computes block loudness. All functions
// are pure and allocation-free so they can run inside the capture tick.
package codec

import (
	"encoding/binary"
	"math"
)

const (
	// scale maps the [-1, 1) float range onto signed 16-bit samples.
	scale = 32768.0
	// maxSample is the largest representable S16LE sample.
	maxSample = 32767
	// minSample is the smallest representable S16LE sample.
	minSample = -32768
)

// EncodeS16LE converts normalized samples to 16-bit little-endian PCM,
// writing into dst. Values are scaled linearly; +1.0 clamps to 0x7FFF and
// -1.0 maps to -0x8000. It returns the number of bytes written.
// dst must hold at least 2*len(samples) bytes.
func EncodeS16LE(samples []float32, dst []byte) int {
	for i, s := range samples {
		n := int32(float64(s) * scale)
		if n > maxSample {
			n = maxSample
		} else if n < minSample {
			n = minSample
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(n)))
	}
	return len(samples) * 2
}

// DecodeS16LE converts 16-bit little-endian PCM back to normalized samples,
// writing into dst. It returns the number of samples written. dst must hold
// at least len(src)/2 samples.
func DecodeS16LE(src []byte, dst []float32) int {
	n := len(src) / 2
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(src[i*2:]))
		dst[i] = float32(float64(v) / scale)
	}
	return n
}

// RMS computes the root-mean-square loudness of a block of normalized
// samples, clamped to [0, 1]. An empty block is silent.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return min(rms, 1.0)
}
