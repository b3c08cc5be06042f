package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a probabilistic set of the distinct keys in a block
type BloomFilter struct {
	words     []uint64
	size      uint64
	hashCount uint64
}

// NewBloomFilter creates a new bloom filter with expected elements and false positive rate
func NewBloomFilter(expectedElements int, falsePositiveRate float64) *BloomFilter {
	if expectedElements < 1 {
		expectedElements = 1
	}
	// m = -(n * ln(p)) / (ln(2)^2)
	size := uint64(-float64(expectedElements) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2))
	if size < 64 {
		size = 64
	}

	// k = (m/n) * ln(2)
	hashCount := uint64(float64(size) / float64(expectedElements) * math.Ln2)
	if hashCount == 0 {
		hashCount = 1
	}

	return &BloomFilter{
		words:     make([]uint64, (size+63)/64),
		size:      size,
		hashCount: hashCount,
	}
}

// KeyHash is the hash a filter is built from
func KeyHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// AddHash inserts a key by its KeyHash
func (bf *BloomFilter) AddHash(h uint64) {
	delta := bits.RotateLeft64(h, 17) | 1
	for i := uint64(0); i < bf.hashCount; i++ {
		bit := h % bf.size
		bf.words[bit/64] |= 1 << (bit % 64)
		h += delta
	}
}

// MayContain checks if a key might be in the set
func (bf *BloomFilter) MayContain(key []byte) bool {
	if bf == nil {
		return true
	}
	h := KeyHash(key)
	delta := bits.RotateLeft64(h, 17) | 1
	for i := uint64(0); i < bf.hashCount; i++ {
		bit := h % bf.size
		if bf.words[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// WriteTo serializes the filter as [size:u64][hash_count:u64][words...]
func (bf *BloomFilter) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 0, 16+8*len(bf.words))
	buf = binary.LittleEndian.AppendUint64(buf, bf.size)
	buf = binary.LittleEndian.AppendUint64(buf, bf.hashCount)
	for _, word := range bf.words {
		buf = binary.LittleEndian.AppendUint64(buf, word)
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// LoadBloomFilter loads a bloom filter from a file
func LoadBloomFilter(filePath string) (*BloomFilter, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, fmt.Errorf("bloom filter %s: short header", filePath)
	}

	bf := &BloomFilter{
		size:      binary.LittleEndian.Uint64(data[0:8]),
		hashCount: binary.LittleEndian.Uint64(data[8:16]),
	}
	words := (bf.size + 63) / 64
	if bf.size == 0 || bf.hashCount == 0 || uint64(len(data)-16) != words*8 {
		return nil, fmt.Errorf("bloom filter %s: size mismatch", filePath)
	}

	bf.words = make([]uint64, words)
	for i := range bf.words {
		bf.words[i] = binary.LittleEndian.Uint64(data[16+8*i:])
	}
	return bf, nil
}
