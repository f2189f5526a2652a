// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{1, 1},       // One
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{1000, 1024}, // Typical FFT request
		{2400, 4096}, // 48 kHz at 20 Hz resolution
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, NextPowerOfTwo(tt.n))
		})
	}
}

func TestPrevPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{0, 0},
		{1, 1},
		{3, 2},
		{1024, 1024},
		{4800, 4096},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, PrevPowerOfTwo(tt.n))
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{8, true},       // Power of two
		{10, false},     // Not power of two
		{4800, false},   // Even but not a power of two
		{1 << 20, true}, // Large power of two
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPowerOfTwo(tt.n))
		})
	}
}

func TestIsEven(t *testing.T) {
	assert.True(t, IsEven(0))
	assert.True(t, IsEven(4800))
	assert.True(t, IsEven(-2))
	assert.False(t, IsEven(1023))
}

func TestLog2(t *testing.T) {
	assert.Equal(t, -1, Log2(0))
	assert.Equal(t, 0, Log2(1))
	assert.Equal(t, 10, Log2(1024))
	assert.Equal(t, 10, Log2(2047))
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}
