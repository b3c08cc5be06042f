package table

import (
	"container/heap"
	"math"
	"sync"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

type direction int

const (
	forward direction = iota
	backward
)

// frontier orders valid sources by key in the iteration direction, then by
// version descending, then by source age (newest first).
type frontier struct {
	cmp     keys.Comparator
	dir     direction
	sources []source
	items   []int
}

func (f *frontier) Len() int { return len(f.items) }

func (f *frontier) Less(i, j int) bool {
	a, b := f.sources[f.items[i]].current(), f.sources[f.items[j]].current()
	if c := f.cmp.Compare(a.Key, b.Key); c != 0 {
		if f.dir == forward {
			return c < 0
		}
		return c > 0
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return f.items[i] < f.items[j]
}

func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

func (f *frontier) Push(x interface{}) {
	f.items = append(f.items, x.(int))
}

func (f *frontier) Pop() interface{} {
	n := len(f.items)
	x := f.items[n-1]
	f.items = f.items[:n-1]
	return x
}

// Iterator is a bidirectional cursor over the newest visible version of
// every key in a table, merged across the memtable and all blocks.
//
// An open Iterator blocks every mutation of its table; Close must be called.
// An Iterator is not safe for concurrent use.
type Iterator struct {
	t         *Table
	f         frontier
	closeOnce sync.Once
}

// NewIterator opens an iterator over the newest version of every key
func (t *Table) NewIterator() (*Iterator, error) {
	return t.NewIteratorAt(math.MaxUint32)
}

// NewIteratorAt opens an iterator that only sees versions <= maxVersion
func (t *Table) NewIteratorAt(maxVersion uint32) (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.Closed(t.name)
	}

	sources := make([]source, 0, len(t.blocks)+1)
	sources = append(sources, newMemSource(t.mem, maxVersion))
	for i := len(t.blocks) - 1; i >= 0; i-- {
		b := t.blocks[i]
		if b.TotalCount == 0 || b.MinVersion > maxVersion {
			continue
		}
		sources = append(sources, newBlockSource(b, maxVersion, t.logger))
	}

	t.readers++
	t.metrics.SetOpenIterators(t.name, t.readers)

	return &Iterator{
		t: t,
		f: frontier{cmp: t.cmp, sources: sources},
	}, nil
}

// rebuild repositions every source with move and re-heaps in dir
func (it *Iterator) rebuild(dir direction, move func(source)) bool {
	it.f.dir = dir
	it.f.items = it.f.items[:0]
	for i, s := range it.f.sources {
		move(s)
		if s.valid() {
			it.f.items = append(it.f.items, i)
		}
	}
	heap.Init(&it.f)
	return it.Valid()
}

// step advances every source sitting on the cursor key in the current
// direction
func (it *Iterator) step() bool {
	if !it.Valid() {
		return false
	}
	key := it.Key()
	for it.f.Len() > 0 {
		i := it.f.items[0]
		s := it.f.sources[i]
		if it.f.cmp.Compare(s.current().Key, key) != 0 {
			break
		}
		if it.f.dir == forward {
			s.next()
		} else {
			s.prev()
		}
		if s.valid() {
			heap.Fix(&it.f, 0)
		} else {
			heap.Pop(&it.f)
		}
	}
	return it.Valid()
}

// SeekBegin moves to the smallest key
func (it *Iterator) SeekBegin() bool {
	return it.rebuild(forward, func(s source) { s.first() })
}

// SeekLast moves to the largest key
func (it *Iterator) SeekLast() bool {
	return it.rebuild(backward, func(s source) { s.last() })
}

// Seek moves to the first key >= key when iterating forward, or the last
// key <= key when iterating backward
func (it *Iterator) Seek(key []byte) bool {
	if it.f.dir == backward {
		return it.SeekForPrev(key)
	}
	return it.rebuild(forward, func(s source) { s.seekGE(key) })
}

// SeekNext moves to the first key strictly after key
func (it *Iterator) SeekNext(key []byte) bool {
	return it.rebuild(forward, func(s source) { s.seekGT(key) })
}

// SeekPrev moves to the last key strictly before key
func (it *Iterator) SeekPrev(key []byte) bool {
	return it.rebuild(backward, func(s source) { s.seekLT(key) })
}

// SeekForPrev moves to the last key <= key
func (it *Iterator) SeekForPrev(key []byte) bool {
	return it.rebuild(backward, func(s source) { s.seekLE(key) })
}

// Next moves to the following key
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	if it.f.dir == backward {
		return it.SeekNext(it.Key())
	}
	return it.step()
}

// Prev moves to the preceding key
func (it *Iterator) Prev() bool {
	if !it.Valid() {
		return false
	}
	if it.f.dir == forward {
		return it.SeekPrev(it.Key())
	}
	return it.step()
}

// Valid reports whether the iterator is positioned on a key
func (it *Iterator) Valid() bool {
	return it.f.Len() > 0
}

func (it *Iterator) top() *record.Record {
	return it.f.sources[it.f.items[0]].current()
}

// Key returns the current key. The slice must not be modified.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.top().Key
}

// Value returns the current value. The slice must not be modified.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.top().Value
}

// Version returns the version the current value was written at
func (it *Iterator) Version() uint32 {
	if !it.Valid() {
		return 0
	}
	return it.top().Version
}

// Close releases the iterator's hold on the table. Only the first call has
// an effect.
func (it *Iterator) Close() error {
	it.closeOnce.Do(func() {
		it.f.items = nil
		it.f.sources = nil

		t := it.t
		t.mu.Lock()
		t.readers--
		t.metrics.SetOpenIterators(t.name, t.readers)
		t.mu.Unlock()
	})
	return nil
}

// Scan calls fn for the newest value of every key in [start, end), in key
// order, until fn returns false. Nil bounds are open. Unreadable entries are
// skipped.
func (t *Table) Scan(start, end []byte, fn func(key, value []byte) bool) error {
	it, err := t.NewIterator()
	if err != nil {
		return err
	}
	defer it.Close()

	ok := it.SeekBegin()
	if start != nil {
		ok = it.Seek(start)
	}
	for ; ok; ok = it.Next() {
		if end != nil && t.cmp.Compare(it.Key(), end) >= 0 {
			break
		}
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return nil
}
