// Package memtable holds the unflushed tail of a table: every inserted
// (key, version) pair ordered in a B-tree, plus a skiplist that maps each key
// to its newest entry.
package memtable

import (
	"math"

	"github.com/google/btree"

	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

const btreeDegree = 32

// Entry is one versioned value held in memory
type Entry struct {
	Key     []byte
	Version uint32
	Value   []byte
}

// Record converts the entry into its on-disk form
func (e *Entry) Record() record.Record {
	return record.Record{Version: e.Version, Key: e.Key, Value: e.Value}
}

// MemTable is not safe for concurrent use; the owning table serializes access.
type MemTable struct {
	cmp   keys.Comparator
	block *btree.BTreeG[*Entry]
	index *SkipList
	size  int64
}

// NewMemTable creates an empty memtable ordered by cmp
func NewMemTable(cmp keys.Comparator) *MemTable {
	m := &MemTable{cmp: cmp}
	m.block = btree.NewG(btreeDegree, m.less)
	m.index = NewSkipList(cmp)
	return m
}

func (m *MemTable) less(a, b *Entry) bool {
	if c := m.cmp.Compare(a.Key, b.Key); c != 0 {
		return c < 0
	}
	return a.Version < b.Version
}

// Put stores value under (key, version), replacing an equal pair
func (m *MemTable) Put(key []byte, version uint32, value []byte) {
	e := &Entry{Key: key, Version: version, Value: value}
	if old, replaced := m.block.ReplaceOrInsert(e); replaced {
		m.size -= int64(record.Size(len(old.Key), len(old.Value)))
	}
	m.size += int64(record.Size(len(key), len(value)))

	if cur, ok := m.index.Search(key); ok && cur.(*Entry).Version > version {
		return
	}
	m.index.Insert(key, e)
}

// Get returns the newest entry for key
func (m *MemTable) Get(key []byte) (*Entry, bool) {
	v, ok := m.index.Search(key)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// GetAt returns the newest entry for key whose version is <= maxVersion
func (m *MemTable) GetAt(key []byte, maxVersion uint32) (*Entry, bool) {
	if e, ok := m.Get(key); !ok {
		return nil, false
	} else if e.Version <= maxVersion {
		return e, true
	}

	var found *Entry
	m.block.DescendLessOrEqual(&Entry{Key: key, Version: maxVersion}, func(e *Entry) bool {
		if m.cmp.Compare(e.Key, key) == 0 {
			found = e
		}
		return false
	})
	return found, found != nil
}

// Size returns the encoded byte size of all held entries
func (m *MemTable) Size() int64 {
	return m.size
}

// Count returns the number of (key, version) entries
func (m *MemTable) Count() int {
	return m.block.Len()
}

// Keys returns the number of distinct keys
func (m *MemTable) Keys() int {
	return m.index.Len()
}

// Empty reports whether the memtable holds nothing
func (m *MemTable) Empty() bool {
	return m.block.Len() == 0
}

// Ascend visits entries in (key asc, version asc) order until fn returns false
func (m *MemTable) Ascend(fn func(*Entry) bool) {
	m.block.Ascend(fn)
}

// MaxVersion returns the highest held version
func (m *MemTable) MaxVersion() (uint32, bool) {
	if m.block.Len() == 0 {
		return 0, false
	}
	var highest uint32
	m.block.Ascend(func(e *Entry) bool {
		if e.Version > highest {
			highest = e.Version
		}
		return true
	})
	return highest, true
}

// Revert drops every entry with version >= version and re-derives the
// newest-entry index for the keys it touched. It returns the number dropped.
func (m *MemTable) Revert(version uint32) int {
	var doomed []*Entry
	m.block.Ascend(func(e *Entry) bool {
		if e.Version >= version {
			doomed = append(doomed, e)
		}
		return true
	})
	if len(doomed) == 0 {
		return 0
	}

	for _, e := range doomed {
		m.block.Delete(e)
		m.size -= int64(record.Size(len(e.Key), len(e.Value)))
	}

	for i, e := range doomed {
		if i > 0 && m.cmp.Compare(doomed[i-1].Key, e.Key) == 0 {
			continue
		}
		if prev, ok := m.latestInBlock(e.Key); ok {
			m.index.Insert(prev.Key, prev)
		} else {
			m.index.Delete(e.Key)
		}
	}
	return len(doomed)
}

func (m *MemTable) latestInBlock(key []byte) (*Entry, bool) {
	var found *Entry
	m.block.DescendLessOrEqual(&Entry{Key: key, Version: math.MaxUint32}, func(e *Entry) bool {
		if m.cmp.Compare(e.Key, key) == 0 {
			found = e
		}
		return false
	})
	return found, found != nil
}

// Clear drops all entries
func (m *MemTable) Clear() {
	m.block.Clear(false)
	m.index = NewSkipList(m.cmp)
	m.size = 0
}
