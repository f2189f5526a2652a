/*
Package bitint provides the integer helpers used when sizing analysis frames.
Spectrum widths must be even; powers of two additionally hit the fastest
FFT path, so configuration code rounds requested sizes up with
NextPowerOfTwo and reports non power-of-two widths with IsPowerOfTwo.

All helpers are allocation free and constant time.

	width := bitint.NextPowerOfTwo(48000 / 20) // 4096 bins for ~11.7 Hz resolution
	if !bitint.IsEven(width) { ... }

NextPowerOfTwo subtracts one before taking the bit length so an exact power
of two maps onto itself:

	size = 8, size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
	size = 9, size-1 = 8 (1000), bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Zero and negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of 2 <= size, or 0 when size < 1.
func PrevPowerOfTwo(size int) int {
	if size < 1 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo checks if n is a power of 2 using bit manipulation.
// Powers of 2 have exactly one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// IsEven reports whether n is divisible by two.
func IsEven(n int) bool {
	return n&1 == 0
}

// Log2 returns floor(log2(n)) for n > 0 and -1 otherwise.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}
