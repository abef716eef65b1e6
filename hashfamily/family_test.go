package hashfamily

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
)

func TestNewDepthBounds(t *testing.T) {
	for depth := 1; depth <= MaxDepth; depth++ {
		f, err := New(depth)
		if err != nil {
			t.Fatalf("New(%d): %v", depth, err)
		}
		if f.Depth() != depth {
			t.Fatalf("New(%d).Depth() = %d", depth, f.Depth())
		}
	}

	_, err := New(MaxDepth + 1)
	if !errors.Is(err, sketcherrors.ErrUnsupportedDepth) {
		t.Errorf("New(%d): expected ErrUnsupportedDepth, got %v", MaxDepth+1, err)
	}

	_, err = New(0)
	if !errors.Is(err, sketcherrors.ErrInvalidParameters) {
		t.Errorf("New(0): expected ErrInvalidParameters, got %v", err)
	}
}

func TestNewCustomOrder(t *testing.T) {
	f, err := New(2, XXH3, PJW)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Algorithms(); got[0] != XXH3 || got[1] != PJW {
		t.Errorf("Algorithms() = %v, want [xxh3 pjw]", got)
	}

	_, err = New(3, XXH3, PJW)
	if !errors.Is(err, sketcherrors.ErrUnsupportedDepth) {
		t.Errorf("depth beyond custom order: expected ErrUnsupportedDepth, got %v", err)
	}

	_, err = New(2, ELF, ELF)
	if !errors.Is(err, sketcherrors.ErrInvalidParameters) {
		t.Errorf("duplicate algorithm: expected ErrInvalidParameters, got %v", err)
	}
}

// TestSumDeterministic checks that every row returns the same value across
// repeated calls and across freshly built families, and that the string and
// byte entry points agree.
func TestSumDeterministic(t *testing.T) {
	keys := []string{
		"",
		"A:B:1:1",
		"ENSG00000164164:ENSG00000175376:11:12",
		"ENSG00000006194:ENSG00000174851:6:6",
	}
	f1, err := New(MaxDepth)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := New(MaxDepth)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range keys {
		for row := range MaxDepth {
			a := f1.Sum(row, []byte(key))
			b := f1.Sum(row, []byte(key))
			c := f2.SumString(row, key)
			if a != b || a != c {
				t.Errorf("row %d (%s) key %q: %d, %d, %d", row, f1.Algorithms()[row], key, a, b, c)
			}
		}
	}
}

// TestKnownValues pins a few outputs so that an accidental change to an
// algorithm, which would silently change every sketch, fails loudly.
func TestKnownValues(t *testing.T) {
	tests := []struct {
		algo Algorithm
		key  string
		want uint64
	}{
		{BKDR, "ab", 97*131 + 98},
		{DJB2, "a", 5381*33 + 97},
		{StringFold, "abcde", 97 + 98*256 + 99*65536 + 100*16777216 + 101},
		{ELF, "a", 97},
		{PJW, "a", 97},
		{SDBM, "a", 97},
		{DEK, "", 0},
		{PJW, "abcdefghij", 180004458},
		{ELF, "abcdefghij", 180004458},
		{JS, "abcdefghij", 1954569408},
		{RS, "abcdefghij", 330944065},
		{DEK, "abcdefghij", 3430313035},
		{PJW, "ENSG00000164164:ENSG00000175376:11:12", 11468002},
		{ELF, "ENSG00000164164:ENSG00000175376:11:12", 11468002},
		{JS, "ENSG00000164164:ENSG00000175376:11:12", 3463428743},
		{RS, "ENSG00000164164:ENSG00000175376:11:12", 2640892098},
		{DEK, "ENSG00000164164:ENSG00000175376:11:12", 3643497533},
		{FNV1a, "", 14695981039346656037},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.algo, tt.key), func(t *testing.T) {
			f, err := New(1, tt.algo)
			if err != nil {
				t.Fatal(err)
			}
			if got := f.SumString(0, tt.key); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

// TestELFMatchesPJW checks that ELF is the same function as PJW on keys long
// enough to fold the top nibble back in, which is why DefaultOrder skips ELF.
func TestELFMatchesPJW(t *testing.T) {
	h := fnv.New64a()
	h.Write([]byte(t.Name()))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	key := make([]byte, 0, 64)
	for range 10000 {
		key = key[:rng.IntN(65)]
		for i := range key {
			key[i] = byte(rng.Uint32())
		}
		if p, e := pjwHash(key), elfHash(key); p != e {
			t.Fatalf("pjw %d != elf %d for key %x", p, e, key)
		}
	}
}

func TestStringFoldDistinguishesKeys(t *testing.T) {
	a := stringFoldHash([]byte("ENSG00000164164:ENSG00000175376:11:12"))
	b := stringFoldHash([]byte("ENSG00000006194:ENSG00000174851:6:6"))
	if a == b {
		t.Errorf("fold hash collided on distinct keys: %d", a)
	}
}

// TestRowsDecorrelated hashes many similar keys into a small width and checks
// that no pair of rows agrees on the column far more often than chance.
func TestRowsDecorrelated(t *testing.T) {
	const (
		width = 1021
		n     = 20000
	)
	f, err := New(MaxDepth)
	if err != nil {
		t.Fatal(err)
	}
	cols := make([][]uint64, MaxDepth)
	for row := range MaxDepth {
		cols[row] = make([]uint64, n)
	}
	for i := range n {
		key := fmt.Appendf(nil, "ENSG%011d:ENSG%011d:%d:%d", i, i*7+3, i%13, i%17)
		for row := range MaxDepth {
			cols[row][i] = f.Sum(row, key) % width
		}
	}

	// Expected agreements for independent rows: n/width ≈ 20.
	const limit = 20 * n / width
	for r1 := range MaxDepth {
		for r2 := r1 + 1; r2 < MaxDepth; r2++ {
			agree := 0
			for i := range n {
				if cols[r1][i] == cols[r2][i] {
					agree++
				}
			}
			if agree > limit {
				t.Errorf("rows %s and %s agree on %d of %d keys", f.Algorithms()[r1], f.Algorithms()[r2], agree, n)
			}
		}
	}
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder("xxh3, murmur3,pjw")
	if err != nil {
		t.Fatal(err)
	}
	want := []Algorithm{XXH3, Murmur3, PJW}
	if len(order) != len(want) {
		t.Fatalf("ParseOrder = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ParseOrder = %v, want %v", order, want)
		}
	}

	if _, err := ParseOrder("xxh3,md5"); !errors.Is(err, sketcherrors.ErrInvalidParameters) {
		t.Errorf("unknown name: expected ErrInvalidParameters, got %v", err)
	}

	for _, a := range DefaultOrder {
		got, err := ParseAlgorithm(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", a.String(), got, err)
		}
	}
}
