package hashfamily

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// jsHash is Justin Sobel's bitwise hash.
func jsHash(key []byte) uint64 {
	var h uint32 = 1315423911
	for _, c := range key {
		h ^= (h << 5) + uint32(c) + (h >> 2)
	}
	return uint64(h)
}

// bkdrHash is the Kernighan and Ritchie multiplicative hash with seed 131.
func bkdrHash(key []byte) uint64 {
	const seed = 131
	var h uint32
	for _, c := range key {
		h = h*seed + uint32(c)
	}
	return uint64(h)
}

// rsHash is Robert Sedgewick's hash: a multiplicative rolling hash whose
// multiplier itself advances each byte.
func rsHash(key []byte) uint64 {
	const b = 378551
	var a uint32 = 63689
	var h uint32
	for _, c := range key {
		h = h*a + uint32(c)
		a *= b
	}
	return uint64(h)
}

// stringFoldHash sums the key in 4-byte little-endian windows: the
// multiplier resets to 1 at every fourth byte and grows by 256 otherwise.
func stringFoldHash(key []byte) uint64 {
	var sum uint64
	var mul uint64 = 1
	for i, c := range key {
		if i%4 == 0 {
			mul = 1
		} else {
			mul *= 256
		}
		sum += uint64(c) * mul
	}
	return sum
}

// pjwHash is Peter J. Weinberger's hash. Each byte shifts the state left by
// one eighth of its width; bits pushed into the top eighth are folded back
// down by three quarters and cleared.
func pjwHash(key []byte) uint64 {
	const (
		bits          = 32
		threeQuarters = bits * 3 / 4
		oneEighth     = bits / 8
		highBits      = 0xF << (bits - oneEighth)
	)
	var h uint32
	for _, c := range key {
		h = (h << oneEighth) + uint32(c)
		if test := h & highBits; test != 0 {
			h = (h ^ (test >> threeQuarters)) &^ highBits
		}
	}
	return uint64(h)
}

// elfHash is the PJW variant used for Unix ELF symbol tables.
func elfHash(key []byte) uint64 {
	var h uint32
	for _, c := range key {
		h = (h << 4) + uint32(c)
		x := h & 0xF0000000
		if x != 0 {
			h ^= x >> 24
		}
		h &^= x
	}
	return uint64(h)
}

// sdbmHash is the hash from the sdbm database library.
func sdbmHash(key []byte) uint64 {
	var h uint32
	for _, c := range key {
		h = uint32(c) + (h << 6) + (h << 16) - h
	}
	return uint64(h)
}

// dekHash is Knuth's rotate-xor hash (TAOCP vol. 3), seeded with the key length.
func dekHash(key []byte) uint64 {
	h := uint32(len(key))
	for _, c := range key {
		h = ((h << 5) ^ (h >> 27)) ^ uint32(c)
	}
	return uint64(h)
}

// djb2Hash is Bernstein's h*33 + c.
func djb2Hash(key []byte) uint64 {
	var h uint32 = 5381
	for _, c := range key {
		h = (h << 5) + h + uint32(c)
	}
	return uint64(h)
}

// fnv1aHash is 64-bit FNV-1a, inlined to avoid a hash.Hash64 allocation per call.
func fnv1aHash(key []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for _, c := range key {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

func xxhashHash(key []byte) uint64 { return xxhash.Sum64(key) }

func murmur3Hash(key []byte) uint64 { return murmur3.Sum64(key) }

func xxh3Hash(key []byte) uint64 { return xxh3.Hash(key) }
