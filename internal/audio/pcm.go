// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"math"
)

// DecodeFloat32LE reinterprets little-endian IEEE 754 bytes as samples,
// appending to dst. Trailing bytes that do not form a whole sample are
// ignored.
func DecodeFloat32LE(dst []Sample, src []byte) []Sample {
	for i := 0; i+4 <= len(src); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(src[i:])))
	}
	return dst
}

// PCMScale returns the divisor that maps signed integer PCM of the given bit
// depth onto [-1, 1).
func PCMScale(bitDepth int) float32 {
	if bitDepth < 1 {
		return 1
	}
	return float32(uint64(1) << (bitDepth - 1))
}

// IntToSamples converts signed integer PCM into normalised samples, appending
// to dst.
func IntToSamples(dst []Sample, src []int, bitDepth int) []Sample {
	scale := PCMScale(bitDepth)
	for _, v := range src {
		dst = append(dst, Sample(v)/scale)
	}
	return dst
}

// SamplesToInt converts normalised samples into signed integer PCM of the
// given bit depth, clipping anything outside [-1, 1].
func SamplesToInt(dst []int, src []Sample, bitDepth int) []int {
	scale := float64(PCMScale(bitDepth))
	hi := scale - 1
	for _, v := range src {
		x := math.Round(float64(v) * scale)
		x = math.Max(-scale, math.Min(hi, x))
		dst = append(dst, int(x))
	}
	return dst
}
