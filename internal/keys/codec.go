package keys

import (
	"encoding/binary"

	"github.com/devrev/pairdb/chainstore/internal/errors"
)

// HashSize is the width of a Hash key
const HashSize = 32

// Hash is a fixed-width 256-bit key such as a block or transaction hash
type Hash [HashSize]byte

// Codec converts a typed key or value to and from its stored bytes
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(b []byte) (T, error)
}

// Uint32 encodes big endian so byte order matches numeric order
type Uint32 struct{}

func (Uint32) Encode(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func (Uint32) Decode(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.KeySizeMismatch("uint32", 4, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// Uint64 encodes big endian so byte order matches numeric order
type Uint64 struct{}

func (Uint64) Encode(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func (Uint64) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.KeySizeMismatch("uint64", 8, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// HashCodec stores a Hash as its 32 raw bytes
type HashCodec struct{}

func (HashCodec) Encode(v Hash) []byte {
	out := make([]byte, HashSize)
	copy(out, v[:])
	return out
}

func (HashCodec) Decode(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.KeySizeMismatch("hash", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Bytes stores raw bytes unchanged
type Bytes struct{}

func (Bytes) Encode(v []byte) []byte {
	return append([]byte(nil), v...)
}

func (Bytes) Decode(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

// String stores a string as its UTF-8 bytes
type String struct{}

func (String) Encode(v string) []byte {
	return []byte(v)
}

func (String) Decode(b []byte) (string, error) {
	return string(b), nil
}

// PairOf is a composite of two typed parts
type PairOf[A, B any] struct {
	First  A
	Second B
}

// Pair encodes a composite key as [len(first):u32][first][second].
// With fixed-width parts the encoding sorts by first, then second.
type Pair[A, B any] struct {
	First  Codec[A]
	Second Codec[B]
}

func (p Pair[A, B]) Encode(v PairOf[A, B]) []byte {
	first := p.First.Encode(v.First)
	second := p.Second.Encode(v.Second)
	out := make([]byte, 0, 4+len(first)+len(second))
	out = binary.BigEndian.AppendUint32(out, uint32(len(first)))
	out = append(out, first...)
	return append(out, second...)
}

func (p Pair[A, B]) Decode(b []byte) (PairOf[A, B], error) {
	var v PairOf[A, B]
	if len(b) < 4 {
		return v, errors.KeySizeMismatch("pair", 4, len(b))
	}
	n := int(binary.BigEndian.Uint32(b))
	if n > len(b)-4 {
		return v, errors.KeySizeMismatch("pair", 4+n, len(b))
	}
	first, err := p.First.Decode(b[4 : 4+n])
	if err != nil {
		return v, err
	}
	second, err := p.Second.Decode(b[4+n:])
	if err != nil {
		return v, err
	}
	v.First = first
	v.Second = second
	return v, nil
}
