package orbitsketch

import (
	"cmp"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// NodePairSet collects the distinct node pairs of pass 1 together with the
// connectivity flag of each pair's first occurrence.
//
// Implementations trade memory for scratch storage; the pipeline owns the
// set for one run and always calls Close, on success and on error.
type NodePairSet interface {
	// Add records pair. Only the first Add of a pair sets its connectivity.
	Add(pair string, connected byte) error
	// Each calls fn for every distinct pair, in ascending byte order within
	// each storage partition, stopping at the first error.
	Each(fn func(pair string, connected byte) error) error
	// Len returns the number of distinct pairs, or -1 while it is unknown.
	// A set that deduplicates lazily knows it only after a complete Each.
	Len() int
	// Close releases any scratch resources. It is safe to call twice.
	Close() error
}

// memoryNodePairs is the in-memory ordered-set strategy.
type memoryNodePairs struct {
	pairs map[string]byte
}

func newMemoryNodePairs() *memoryNodePairs {
	return &memoryNodePairs{pairs: make(map[string]byte)}
}

func (m *memoryNodePairs) Add(pair string, connected byte) error {
	if _, ok := m.pairs[pair]; !ok {
		m.pairs[pair] = connected
	}
	return nil
}

func (m *memoryNodePairs) Each(fn func(pair string, connected byte) error) error {
	for _, pair := range slices.Sorted(maps.Keys(m.pairs)) {
		if err := fn(pair, m.pairs[pair]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryNodePairs) Len() int { return len(m.pairs) }

func (m *memoryNodePairs) Close() error {
	m.pairs = nil
	return nil
}

// orbitPair is a distinct orbit pair with its parsed components, used to
// order the report numerically.
type orbitPair struct {
	text string
	o, p uint64
}

// orbitPairSet holds every distinct orbit pair of the stream. Orbit numbers
// come from a small fixed catalogue, so the set stays in memory under every
// deduplication strategy.
type orbitPairSet struct {
	seen map[string]struct{}
}

func newOrbitPairSet() *orbitPairSet {
	return &orbitPairSet{seen: make(map[string]struct{})}
}

func (s *orbitPairSet) add(pair string) {
	s.seen[pair] = struct{}{}
}

func (s *orbitPairSet) len() int { return len(s.seen) }

// sorted returns the pairs ordered by (o, p). Pairs were validated by the
// parser, so both halves are decimal.
func (s *orbitPairSet) sorted() []orbitPair {
	out := make([]orbitPair, 0, len(s.seen))
	for text := range s.seen {
		o, p, _ := strings.Cut(text, ":")
		ov, _ := strconv.ParseUint(o, 10, 64)
		pv, _ := strconv.ParseUint(p, 10, 64)
		out = append(out, orbitPair{text: text, o: ov, p: pv})
	}
	slices.SortFunc(out, func(a, b orbitPair) int {
		return cmp.Or(cmp.Compare(a.o, b.o), cmp.Compare(a.p, b.p), strings.Compare(a.text, b.text))
	})
	return out
}
