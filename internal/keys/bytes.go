package keys

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// PrefixSize is the width of the length prefix of a ByteKey or ByteValue
const PrefixSize = 4

// ByteKey is the raw form every typed key takes inside a table
type ByteKey []byte

// ByteValue is the raw form every typed value takes inside a table
type ByteValue []byte

// Encode returns the raw key of v under c
func Encode[T any](c Codec[T], v T) ByteKey {
	return ByteKey(c.Encode(v))
}

func (k ByteKey) Equal(other ByteKey) bool {
	return bytes.Equal(k, other)
}

func (k ByteKey) Clone() ByteKey {
	return ByteKey(bytes.Clone(k))
}

func (k ByteKey) String() string {
	return hex.EncodeToString(k)
}

// AppendTo writes the key length-prefixed onto dst
func (k ByteKey) AppendTo(dst []byte) []byte {
	return AppendPrefixed(dst, k)
}

func (v ByteValue) Clone() ByteValue {
	return ByteValue(bytes.Clone(v))
}

// AppendTo writes the value length-prefixed onto dst
func (v ByteValue) AppendTo(dst []byte) []byte {
	return AppendPrefixed(dst, v)
}

// AppendPrefixed writes b as [len:u32 little endian][b]
func AppendPrefixed(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}
