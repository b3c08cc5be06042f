package block

import (
	"container/heap"

	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

// MergeSource is one sorted input of a k-way merge
type MergeSource interface {
	Next() bool
	Record() record.Record
	Err() error
}

var _ MergeSource = (*Scanner)(nil)

// mergeEntry is the head record of one source
type mergeEntry struct {
	rec    record.Record
	source int
}

// mergeHeap implements heap.Interface ordered by (key, version); on a tie
// the newer source (higher index) comes first
type mergeHeap struct {
	entries []*mergeEntry
	cmp     keys.Comparator
}

func (h *mergeHeap) Len() int { return len(h.entries) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if c := h.cmp.Compare(a.rec.Key, b.rec.Key); c != 0 {
		return c < 0
	}
	if a.rec.Version != b.rec.Version {
		return a.rec.Version < b.rec.Version
	}
	return a.source > b.source
}

func (h *mergeHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *mergeHeap) Push(x interface{}) {
	h.entries = append(h.entries, x.(*mergeEntry))
}

func (h *mergeHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	x := old[n-1]
	h.entries = old[:n-1]
	return x
}

// Merger streams the union of sorted sources in (key, version) order,
// holding one record per source. Exact (key, version) repeats collapse to
// the copy from the newest source.
type Merger struct {
	sources []MergeSource
	heap    *mergeHeap
	cur     record.Record
	started bool
	err     error
}

// NewMerger primes one record from every source; sources are ordered
// oldest to newest
func NewMerger(cmp keys.Comparator, sources []MergeSource) *Merger {
	m := &Merger{
		sources: sources,
		heap:    &mergeHeap{cmp: cmp},
	}
	heap.Init(m.heap)
	for i := range sources {
		m.advance(i)
	}
	return m
}

func (m *Merger) advance(i int) {
	src := m.sources[i]
	if src.Next() {
		heap.Push(m.heap, &mergeEntry{rec: src.Record(), source: i})
		return
	}
	if err := src.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

// Next moves to the next distinct (key, version)
func (m *Merger) Next() bool {
	for m.err == nil && m.heap.Len() > 0 {
		top := heap.Pop(m.heap).(*mergeEntry)
		m.advance(top.source)

		if m.started && top.rec.Version == m.cur.Version && m.heap.cmp.Compare(top.rec.Key, m.cur.Key) == 0 {
			continue
		}
		m.cur = top.rec
		m.started = true
		return true
	}
	return false
}

// Record returns the current record
func (m *Merger) Record() record.Record {
	return m.cur
}

// Err returns the first source error
func (m *Merger) Err() error {
	return m.err
}
