package table

import (
	"github.com/devrev/pairdb/chainstore/internal/keys"
)

// Typed wraps a Table with key and value codecs
type Typed[K, V any] struct {
	t      *Table
	keys   keys.Codec[K]
	values keys.Codec[V]
}

// NewTyped returns a typed view of t
func NewTyped[K, V any](t *Table, kc keys.Codec[K], vc keys.Codec[V]) *Typed[K, V] {
	return &Typed[K, V]{t: t, keys: kc, values: vc}
}

// Table returns the underlying table
func (tt *Typed[K, V]) Table() *Table {
	return tt.t
}

// Insert encodes key and value and writes them at the current version
func (tt *Typed[K, V]) Insert(key K, value V) error {
	return tt.t.Insert(keys.Encode(tt.keys, key), tt.values.Encode(value))
}

// Find returns the newest value of key. A stored value of the wrong shape
// fails with KeySizeMismatch.
func (tt *Typed[K, V]) Find(key K) (V, bool, error) {
	var zero V
	raw, ok, err := tt.t.Find(keys.Encode(tt.keys, key))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := tt.values.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// FindAt returns the value of key as of maxVersion
func (tt *Typed[K, V]) FindAt(key K, maxVersion uint32) (V, bool, error) {
	var zero V
	raw, ok, err := tt.t.FindAt(keys.Encode(tt.keys, key), maxVersion)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := tt.values.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Scan visits every key in order. Entries that fail to decode are skipped.
func (tt *Typed[K, V]) Scan(fn func(key K, value V) bool) error {
	return tt.t.Scan(nil, nil, func(rawKey, rawValue []byte) bool {
		k, err := tt.keys.Decode(rawKey)
		if err != nil {
			return true
		}
		v, err := tt.values.Decode(rawValue)
		if err != nil {
			return true
		}
		return fn(k, v)
	})
}
