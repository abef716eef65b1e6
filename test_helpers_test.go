package orbitsketch

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"strings"
	"testing"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

// newTestRNG returns a PCG generator seeded from the test name, so every
// test draws its own reproducible stream.
func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// motifLine formats one prediction-mode input line.
func motifLine(u, v int, c int, o, p int) string {
	return fmt.Sprintf("P ENSG%011d:ENSG%011d %d %d:%d 12:12 ENSG%011d:ENSG%011d\n", u, v, c, o, p, u, u+1)
}

// generateMotifs builds n random lines over a small universe of node pairs
// and orbit pairs, heavily skewed towards a few combinations.
func generateMotifs(rng *rand.Rand, n int) string {
	var sb strings.Builder
	for range n {
		u := rng.IntN(40)
		v := 100 + rng.IntN(40)
		o := 1 + rng.IntN(3)
		p := o + rng.IntN(2)
		if rng.IntN(4) == 0 {
			// heavy hitter
			u, v, o, p = 7, 107, 11, 12
		}
		sb.WriteString(motifLine(u, v, (u+v)%2, o, p))
	}
	return sb.String()
}

// exactCounts parses lines the slow way and counts every sketch key.
func exactCounts(t testing.TB, input string) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	for line := range strings.Lines(input) {
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		counts[f[1]+":"+f[3]]++
	}
	return counts
}

// assertDirEmpty fails the test if dir has any entries left.
func assertDirEmpty(t testing.TB, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	for _, e := range entries {
		t.Errorf("leftover entry %s in %s", e.Name(), dir)
	}
}
