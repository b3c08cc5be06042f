package block

import (
	"encoding/binary"
	"io"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

func (b *Block) runEnd(i int) int64 {
	if i+1 < len(b.offsets) {
		return b.offsets[i+1]
	}
	return b.IndexOffset
}

// KeyAt reads the key of the i-th distinct key
func (b *Block) KeyAt(i int) ([]byte, error) {
	r, err := b.readerAt()
	if err != nil {
		return nil, err
	}
	return b.keyAt(r, i)
}

func (b *Block) keyAt(r io.ReaderAt, i int) ([]byte, error) {
	off := b.offsets[i]
	var head [8]byte
	if _, err := r.ReadAt(head[:], off); err != nil {
		return nil, errors.MalformedRecord(b.Path, off, err)
	}
	keyLen := int64(binary.LittleEndian.Uint32(head[4:8]))
	if keyLen == 0 || off+8+keyLen > b.runEnd(i) {
		return nil, errors.MalformedRecord(b.Path, off, nil)
	}
	key := make([]byte, keyLen)
	if _, err := r.ReadAt(key, off+8); err != nil {
		return nil, errors.MalformedRecord(b.Path, off, err)
	}
	return key, nil
}

// search returns the first distinct key index i with key_i >= key
// (or > key when strict), binary searching the sparse index.
func (b *Block) search(key []byte, strict bool) (int, error) {
	r, err := b.readerAt()
	if err != nil {
		return 0, err
	}

	lo, hi := 0, len(b.offsets)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		k, err := b.keyAt(r, mid)
		if err != nil {
			return 0, err
		}
		c := b.cmp.Compare(k, key)
		if c < 0 || (strict && c == 0) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// LowerBound returns the index of the first distinct key >= key
func (b *Block) LowerBound(key []byte) (int, error) {
	return b.search(key, false)
}

// UpperBound returns the index of the first distinct key > key
func (b *Block) UpperBound(key []byte) (int, error) {
	return b.search(key, true)
}

// Run reads every record of the i-th distinct key, ascending by version
func (b *Block) Run(i int) ([]record.Record, error) {
	r, err := b.readerAt()
	if err != nil {
		return nil, err
	}

	start, end := b.offsets[i], b.runEnd(i)
	rd := record.NewReader(io.NewSectionReader(r, start, end-start), start, end-start)
	var run []record.Record
	for {
		res := rd.Next()
		switch res.Status {
		case record.StatusOK:
			run = append(run, res.Record)
		case record.StatusEndOfLog:
			return run, nil
		default:
			return nil, errors.MalformedRecord(b.Path, res.Offset, res.Err)
		}
	}
}

// Latest picks the highest version <= maxVersion from an ascending run
func Latest(run []record.Record, maxVersion uint32) (record.Record, bool) {
	for i := len(run) - 1; i >= 0; i-- {
		if run[i].Version <= maxVersion {
			return run[i], true
		}
	}
	return record.Record{}, false
}

// locate returns the run for key, or nil when the block does not hold it
func (b *Block) locate(key []byte) ([]record.Record, error) {
	if !b.bloom.MayContain(key) {
		return nil, nil
	}
	i, err := b.LowerBound(key)
	if err != nil || i >= len(b.offsets) {
		return nil, err
	}
	k, err := b.KeyAt(i)
	if err != nil {
		return nil, err
	}
	if b.cmp.Compare(k, key) != 0 {
		return nil, nil
	}
	return b.Run(i)
}

// Find returns the newest record for key
func (b *Block) Find(key []byte) (record.Record, bool, error) {
	return b.FindAt(key, record.RevertVersion)
}

// FindAt returns the record for key with the greatest version <= maxVersion
func (b *Block) FindAt(key []byte, maxVersion uint32) (record.Record, bool, error) {
	if b.TotalCount == 0 || b.MinVersion > maxVersion {
		return record.Record{}, false, nil
	}
	run, err := b.locate(key)
	if err != nil || run == nil {
		return record.Record{}, false, err
	}
	rec, ok := Latest(run, maxVersion)
	return rec, ok, nil
}

// Scanner walks every record of a block in file order
type Scanner struct {
	b   *Block
	rd  *record.Reader
	cur record.Record
	err error
}

// NewScanner returns a sequential reader over the block's records
func (b *Block) NewScanner() (*Scanner, error) {
	r, err := b.readerAt()
	if err != nil {
		return nil, err
	}
	size := b.IndexOffset - HeaderSize
	return &Scanner{
		b:  b,
		rd: record.NewReader(io.NewSectionReader(r, HeaderSize, size), HeaderSize, size),
	}, nil
}

// Next advances to the next record
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	res := s.rd.Next()
	switch res.Status {
	case record.StatusOK:
		s.cur = res.Record
		return true
	case record.StatusEndOfLog:
		return false
	default:
		s.err = errors.MalformedRecord(s.b.Path, res.Offset, res.Err)
		return false
	}
}

// Record returns the current record
func (s *Scanner) Record() record.Record {
	return s.cur
}

// Err returns the first decode error
func (s *Scanner) Err() error {
	return s.err
}
