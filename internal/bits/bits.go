// Package bits provides the range reduction used to route keys to partitions.
package bits

import "math/bits"

// FastRange32 maps a 64-bit hash uniformly to [0, n) returning uint32.
// It multiplies and keeps the high word instead of taking a modulo, which
// avoids both the division and modulo bias.
func FastRange32(hash uint64, n uint32) uint32 {
	if n == 0 {
		return 0
	}
	hi, _ := bits.Mul64(hash, uint64(n))
	return uint32(hi)
}

// Partition returns the partition in [0, n) that owns hash. n must be in
// [1, MaxUint32]; Partition returns 0 for n < 1.
func Partition(hash uint64, n int) int {
	if n < 1 {
		return 0
	}
	return int(FastRange32(hash, uint32(n)))
}
