package bits

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"testing"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

func TestFastRange32InRange(t *testing.T) {
	rng := newTestRNG(t)
	for i := range 10000 {
		n := rng.Uint32N(math.MaxUint32) + 1
		h := rng.Uint64()
		if got := FastRange32(h, n); got >= n {
			t.Fatalf("iter %d: FastRange32(0x%X, %d) = %d", i, h, n, got)
		}
	}
	if got := FastRange32(math.MaxUint64, 0); got != 0 {
		t.Errorf("FastRange32(MaxUint64, 0) = %d, want 0", got)
	}
	if got := FastRange32(math.MaxUint64, 64); got != 63 {
		t.Errorf("FastRange32(MaxUint64, 64) = %d, want 63", got)
	}
}

// TestPartitionBalance routes random hashes to 16 partitions and checks
// that every partition receives a share close to 1/16.
func TestPartitionBalance(t *testing.T) {
	const (
		parts = 16
		n     = 160000
	)
	rng := newTestRNG(t)
	var counts [parts]int
	for range n {
		counts[Partition(rng.Uint64(), parts)]++
	}
	for p, c := range counts {
		if c < n/parts*9/10 || c > n/parts*11/10 {
			t.Errorf("partition %d got %d of %d hashes", p, c, n)
		}
	}

	if got := Partition(42, 0); got != 0 {
		t.Errorf("Partition(42, 0) = %d, want 0", got)
	}
}
