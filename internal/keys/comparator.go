// Package keys holds the key ordering used by tables and the codecs that turn
// typed keys and values into the raw byte strings a table stores.
//
// Tables compare keys with a Comparator. The default orders by byte length
// first and then lexicographically, so every table should use one fixed-width
// encoding per key type for the order to match the natural one.
package keys

import "bytes"

// Comparator defines a total order over raw keys.
type Comparator interface {
	// Compare returns -1, 0, or +1
	Compare(a, b []byte) int

	// Name identifies the ordering in logs
	Name() string
}

// LengthFirst orders keys by length, then byte-wise.
type LengthFirst struct{}

func (LengthFirst) Compare(a, b []byte) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return bytes.Compare(a, b)
}

func (LengthFirst) Name() string {
	return "keys.LengthFirst"
}

// Lexicographic orders keys as raw bytes.
type Lexicographic struct{}

func (Lexicographic) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (Lexicographic) Name() string {
	return "keys.Lexicographic"
}

// Default is the comparator used when a table does not configure one.
var Default Comparator = LengthFirst{}
