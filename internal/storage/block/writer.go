package block

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
)

// Writer streams sorted records into a new block file
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	path    string
	cmp     keys.Comparator
	meta    Meta
	offset  int64
	index   []int64
	hashes  []uint64
	lastKey []byte
	lastVer uint32
	bloomFP float64
	scratch []byte
}

// WriterConfig holds block writer configuration
type WriterConfig struct {
	Level         uint32
	Comparator    keys.Comparator
	BloomFilterFP float64
}

// NewWriter creates the block file at path and reserves its header
func NewWriter(path string, cfg *WriterConfig) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to create block %s", path), err)
	}

	cmp := cfg.Comparator
	if cmp == nil {
		cmp = keys.Default
	}
	w := &Writer{
		file:    file,
		buf:     bufio.NewWriterSize(file, 256*1024),
		path:    path,
		cmp:     cmp,
		bloomFP: cfg.BloomFilterFP,
		meta: Meta{
			Format:     FormatVersion,
			Level:      cfg.Level,
			MinVersion: math.MaxUint32,
		},
	}

	// Header is rewritten once the index offset is known.
	if _, err := w.buf.Write(make([]byte, HeaderSize)); err != nil {
		w.Abort()
		return nil, errors.Filesystem("failed to reserve block header", err)
	}
	w.offset = HeaderSize
	return w, nil
}

// Add appends a record. Records must arrive in (key, version) order;
// an exact (key, version) repeat is dropped.
func (w *Writer) Add(r record.Record) error {
	if w.lastKey != nil {
		c := w.cmp.Compare(r.Key, w.lastKey)
		if c < 0 || (c == 0 && r.Version < w.lastVer) {
			return errors.InternalError(fmt.Sprintf("block %s: record out of order", w.path), nil)
		}
		if c == 0 && r.Version == w.lastVer {
			return nil
		}
		if c > 0 {
			w.startKey(r.Key)
		}
	} else {
		w.startKey(r.Key)
	}

	w.scratch = record.Append(w.scratch[:0], r)
	if _, err := w.buf.Write(w.scratch); err != nil {
		return errors.Filesystem(fmt.Sprintf("failed to write block %s", w.path), err)
	}
	w.offset += int64(len(w.scratch))
	w.lastVer = r.Version

	w.meta.TotalCount++
	if r.Version < w.meta.MinVersion {
		w.meta.MinVersion = r.Version
	}
	if r.Version > w.meta.MaxVersion {
		w.meta.MaxVersion = r.Version
	}
	return nil
}

func (w *Writer) startKey(key []byte) {
	w.index = append(w.index, w.offset)
	w.hashes = append(w.hashes, KeyHash(key))
	w.lastKey = append(w.lastKey[:0], key...)
}

// Count returns the number of records written so far
func (w *Writer) Count() uint64 {
	return w.meta.TotalCount
}

// Finish writes the sparse index and header, syncs, and closes the file
func (w *Writer) Finish() (Meta, error) {
	if w.meta.TotalCount == 0 {
		w.meta.MinVersion = 0
	}
	w.meta.IndexOffset = w.offset

	index := make([]byte, 0, 8+8*len(w.index))
	index = binary.LittleEndian.AppendUint64(index, uint64(len(w.index)))
	for _, off := range w.index {
		index = binary.LittleEndian.AppendUint64(index, uint64(off))
	}
	if _, err := w.buf.Write(index); err != nil {
		w.Abort()
		return Meta{}, errors.Filesystem("failed to write block index", err)
	}
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return Meta{}, errors.Filesystem("failed to flush block", err)
	}
	if _, err := w.file.WriteAt(w.meta.encode(), 0); err != nil {
		w.Abort()
		return Meta{}, errors.Filesystem("failed to write block header", err)
	}
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return Meta{}, errors.Filesystem("failed to sync block", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.path)
		return Meta{}, errors.Filesystem("failed to close block", err)
	}

	if err := w.writeBloom(); err != nil {
		// The block is still readable without a filter.
		os.Remove(BloomPath(w.path))
	}
	return w.meta, nil
}

func (w *Writer) writeBloom() error {
	fp := w.bloomFP
	if fp <= 0 || fp >= 1 {
		fp = 0.01
	}
	bf := NewBloomFilter(len(w.hashes), fp)
	for _, h := range w.hashes {
		bf.AddHash(h)
	}

	file, err := os.Create(BloomPath(w.path))
	if err != nil {
		return err
	}
	if _, err := bf.WriteTo(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Abort closes and removes a partially written block
func (w *Writer) Abort() {
	w.file.Close()
	os.Remove(w.path)
	os.Remove(BloomPath(w.path))
}
