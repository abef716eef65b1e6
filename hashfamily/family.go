// Package hashfamily provides a bank of deterministic string hash functions
// for the rows of a count-min sketch.
//
// A Family is an ordered selection of algorithms: row i of the sketch is
// hashed with the i-th algorithm. Nothing is seeded at runtime, so the same
// key maps to the same columns in every process.
package hashfamily

import (
	"fmt"
	"strings"
	"unsafe"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
)

// Algorithm identifies one hash function of the family.
type Algorithm uint8

const (
	JS Algorithm = iota
	BKDR
	RS
	StringFold
	PJW
	ELF
	SDBM
	DEK
	DJB2
	FNV1a
	XXHash
	Murmur3
	XXH3

	numAlgorithms
)

var algorithmNames = [numAlgorithms]string{
	JS:         "js",
	BKDR:       "bkdr",
	RS:         "rs",
	StringFold: "fold",
	PJW:        "pjw",
	ELF:        "elf",
	SDBM:       "sdbm",
	DEK:        "dek",
	DJB2:       "djb2",
	FNV1a:      "fnv1a",
	XXHash:     "xxhash",
	Murmur3:    "murmur3",
	XXH3:       "xxh3",
}

var algorithmFuncs = [numAlgorithms]func([]byte) uint64{
	JS:         jsHash,
	BKDR:       bkdrHash,
	RS:         rsHash,
	StringFold: stringFoldHash,
	PJW:        pjwHash,
	ELF:        elfHash,
	SDBM:       sdbmHash,
	DEK:        dekHash,
	DJB2:       djb2Hash,
	FNV1a:      fnv1aHash,
	XXHash:     xxhashHash,
	Murmur3:    murmur3Hash,
	XXH3:       xxh3Hash,
}

// DefaultOrder is the row order used when none is given. The classic
// string hashes come first, the seedless third-party hashes last.
//
// ELF is left out: with a 32-bit state it computes exactly what PJW does, so
// the two rows would always collide together.
var DefaultOrder = []Algorithm{JS, BKDR, RS, StringFold, PJW, SDBM, DEK, DJB2, FNV1a, XXHash, Murmur3, XXH3}

// MaxDepth is the largest depth a family built from DefaultOrder supports.
const MaxDepth = int(numAlgorithms) - 1

func (a Algorithm) String() string {
	if a < numAlgorithms {
		return algorithmNames[a]
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// ParseAlgorithm resolves a name as printed by Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	return 0, sketcherrors.Newf(sketcherrors.InvalidParameters, "parse hash algorithm", "unknown algorithm %q", name)
}

// ParseOrder parses a comma-separated list of algorithm names.
func ParseOrder(list string) ([]Algorithm, error) {
	var order []Algorithm
	for name := range strings.SplitSeq(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		a, err := ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		order = append(order, a)
	}
	return order, nil
}

// Family is an ordered bank of depth hash functions.
// It is immutable and safe for concurrent use.
type Family struct {
	algos []Algorithm
	funcs []func([]byte) uint64
}

// New selects the first depth algorithms of order (DefaultOrder if order is
// empty). Asking for more rows than order provides fails with UnsupportedDepth.
func New(depth int, order ...Algorithm) (*Family, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if depth < 1 {
		return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new hash family", "depth %d < 1", depth)
	}
	if depth > len(order) {
		return nil, sketcherrors.Newf(sketcherrors.UnsupportedDepth, "new hash family",
			"depth %d exceeds the %d available hash functions", depth, len(order))
	}

	f := &Family{
		algos: make([]Algorithm, depth),
		funcs: make([]func([]byte) uint64, depth),
	}
	var seen [numAlgorithms]bool
	for i, a := range order[:depth] {
		if a >= numAlgorithms {
			return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new hash family", "unknown algorithm %d", uint8(a))
		}
		// A repeated algorithm makes two rows collide identically.
		if seen[a] {
			return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new hash family", "algorithm %s listed twice", a)
		}
		seen[a] = true
		f.algos[i] = a
		f.funcs[i] = algorithmFuncs[a]
	}
	return f, nil
}

// Depth returns the number of rows.
func (f *Family) Depth() int { return len(f.funcs) }

// Algorithms returns the row order. The caller must not modify it.
func (f *Family) Algorithms() []Algorithm { return f.algos }

// Sum hashes key with row's function. row must be in [0, Depth()).
func (f *Family) Sum(row int, key []byte) uint64 {
	return f.funcs[row](key)
}

// SumString is Sum without copying s.
func (f *Family) SumString(row int, s string) uint64 {
	return f.funcs[row](unsafe.Slice(unsafe.StringData(s), len(s)))
}
