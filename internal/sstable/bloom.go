package sstable

import (
	"io"

	"github.com/spaolacci/murmur3"
)

const (
	// bloomBitsPerKey and bloomMinBits size the filter for a table of n
	// records: m = max(10*n, 1000) bits, k fixed at 7. These keep the false
	// positive rate under 5% at design capacity.
	bloomBitsPerKey = 10
	bloomMinBits    = 1000
	bloomHashCount  = 7
)

// BloomFilter answers "possibly present" / "definitely absent" for the keys
// of one table, so point lookups can skip files without touching the data
// section. False positives happen, false negatives never do.
type BloomFilter struct {
	bits []byte // packed little-endian: bit j of byte i is position 8i+j
	m    uint32 // bit count
	k    uint32 // hash count
}

// NewBloomFilter sizes a filter for the expected number of records.
func NewBloomFilter(expected int) *BloomFilter {
	m := uint32(expected * bloomBitsPerKey)
	if m < bloomMinBits {
		m = bloomMinBits
	}
	return &BloomFilter{
		bits: make([]byte, (m+7)/8),
		m:    m,
		k:    bloomHashCount,
	}
}

// position derives the i-th bit index by double hashing two seeded
// murmur3 values. The hash is treated as signed and folded to its absolute
// value before the modulus.
func (bf *BloomFilter) position(key []byte, i uint32) uint32 {
	g1 := seededHash(key, i) % bf.m
	g2 := seededHash(key, i+bf.k) % bf.m
	return uint32((uint64(g1) + uint64(i)*uint64(g2)) % uint64(bf.m))
}

func seededHash(key []byte, seed uint32) uint32 {
	h := int64(int32(murmur3.Sum32WithSeed(key, seed)))
	if h < 0 {
		h = -h
	}
	return uint32(h)
}

// Add sets the k bits for key.
func (bf *BloomFilter) Add(key []byte) {
	for i := uint32(0); i < bf.k; i++ {
		pos := bf.position(key, i)
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MayContain reports whether all k bits for key are set.
func (bf *BloomFilter) MayContain(key []byte) bool {
	for i := uint32(0); i < bf.k; i++ {
		pos := bf.position(key, i)
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Bits returns the packed bit array, ceil(m/8) bytes.
func (bf *BloomFilter) Bits() []byte {
	return bf.bits
}

// M returns the bit count.
func (bf *BloomFilter) M() uint32 {
	return bf.m
}

// K returns the hash count.
func (bf *BloomFilter) K() uint32 {
	return bf.k
}

// LoadBloomFilter rebuilds a filter from its packed bits and parameters as
// read from a table's bloom section.
func LoadBloomFilter(data []byte, m, k uint32) (*BloomFilter, error) {
	if m == 0 || k == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	byteCount := int(m+7) / 8
	if len(data) < byteCount {
		return nil, io.ErrUnexpectedEOF
	}

	bits := make([]byte, byteCount)
	copy(bits, data[:byteCount])

	return &BloomFilter{bits: bits, m: m, k: k}, nil
}
