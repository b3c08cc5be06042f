package table

import (
	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/storage/block"
	"github.com/devrev/pairdb/chainstore/internal/storage/memtable"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

// source is one input of an Iterator. It sits on the newest visible version
// of one distinct key.
type source interface {
	first()
	last()
	seekGE(key []byte)
	seekGT(key []byte)
	seekLE(key []byte)
	seekLT(key []byte)
	next()
	prev()

	valid() bool
	current() *record.Record
}

type memSource struct {
	c   *memtable.Cursor
	rec record.Record
}

func newMemSource(m *memtable.MemTable, maxVersion uint32) *memSource {
	return &memSource{c: m.NewCursor(maxVersion)}
}

func (s *memSource) settle(ok bool) {
	if ok {
		s.rec = s.c.Entry().Record()
	}
}

func (s *memSource) first()            { s.settle(s.c.First()) }
func (s *memSource) last()             { s.settle(s.c.Last()) }
func (s *memSource) seekGE(key []byte) { s.settle(s.c.SeekGE(key)) }
func (s *memSource) seekGT(key []byte) { s.settle(s.c.SeekGT(key)) }
func (s *memSource) seekLE(key []byte) { s.settle(s.c.SeekLE(key)) }
func (s *memSource) seekLT(key []byte) { s.settle(s.c.SeekLT(key)) }
func (s *memSource) next()             { s.settle(s.c.Next()) }
func (s *memSource) prev()             { s.settle(s.c.Prev()) }
func (s *memSource) valid() bool       { return s.c.Valid() }
func (s *memSource) current() *record.Record {
	return &s.rec
}

// blockSource walks the distinct keys of a block. Keys whose run cannot be
// decoded, or that have no version under the ceiling, are skipped.
type blockSource struct {
	b          *block.Block
	maxVersion uint32
	logger     *zap.Logger
	pos        int
	ok         bool
	rec        record.Record
}

func newBlockSource(b *block.Block, maxVersion uint32, logger *zap.Logger) *blockSource {
	return &blockSource{b: b, maxVersion: maxVersion, logger: logger}
}

// load positions the source on key i if it has a visible version
func (s *blockSource) load(i int) bool {
	run, err := s.b.Run(i)
	if err != nil {
		s.logger.Warn("Skipping unreadable key during iteration",
			zap.String("block", s.b.Name),
			zap.Int("position", i),
			zap.Error(err))
		return false
	}
	rec, ok := block.Latest(run, s.maxVersion)
	if !ok {
		return false
	}
	s.pos, s.ok, s.rec = i, true, rec
	return true
}

func (s *blockSource) forward(i int) {
	for ; i < s.b.KeyCount(); i++ {
		if s.load(i) {
			return
		}
	}
	s.ok = false
}

func (s *blockSource) backward(i int) {
	for ; i >= 0; i-- {
		if s.load(i) {
			return
		}
	}
	s.ok = false
}

func (s *blockSource) bound(key []byte, upper bool) (int, bool) {
	var (
		i   int
		err error
	)
	if upper {
		i, err = s.b.UpperBound(key)
	} else {
		i, err = s.b.LowerBound(key)
	}
	if err != nil {
		s.logger.Warn("Block search failed during iteration", zap.String("block", s.b.Name), zap.Error(err))
		s.ok = false
		return 0, false
	}
	return i, true
}

func (s *blockSource) first() { s.forward(0) }
func (s *blockSource) last()  { s.backward(s.b.KeyCount() - 1) }

func (s *blockSource) seekGE(key []byte) {
	if i, ok := s.bound(key, false); ok {
		s.forward(i)
	}
}

func (s *blockSource) seekGT(key []byte) {
	if i, ok := s.bound(key, true); ok {
		s.forward(i)
	}
}

func (s *blockSource) seekLE(key []byte) {
	if i, ok := s.bound(key, true); ok {
		s.backward(i - 1)
	}
}

func (s *blockSource) seekLT(key []byte) {
	if i, ok := s.bound(key, false); ok {
		s.backward(i - 1)
	}
}

func (s *blockSource) next() {
	if s.ok {
		s.forward(s.pos + 1)
	}
}

func (s *blockSource) prev() {
	if s.ok {
		s.backward(s.pos - 1)
	}
}

func (s *blockSource) valid() bool { return s.ok }

func (s *blockSource) current() *record.Record {
	return &s.rec
}
