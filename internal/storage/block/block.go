// Package block implements the immutable on-disk runs a table flushes its
// memtable into.
//
// File layout, little endian:
//
//	header  [format:u16][level:u32][min_version:u32][max_version:u32][total_count:u64][index_offset:u64]
//	records [version:u32][key_len:u32][key][value_len:u32][value]   sorted by (key, version) ascending
//	index   [count:u64][offset:u64]*count                            one offset per distinct key
//
// Only the header and the sparse index are held in memory; records are read
// on demand. A sidecar "<name>.bloom" file holds a bloom filter of the keys.
package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/keys"
)

const (
	// FormatVersion is written into every block header
	FormatVersion uint16 = 1

	// HeaderSize is the fixed size of the block header
	HeaderSize = 2 + 4 + 4 + 4 + 8 + 8

	bloomSuffix = ".bloom"
)

// Meta is the header of a block file
type Meta struct {
	Format      uint16
	Level       uint32
	MinVersion  uint32
	MaxVersion  uint32
	TotalCount  uint64
	IndexOffset int64
}

func (m *Meta) encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.LittleEndian.AppendUint16(buf, m.Format)
	buf = binary.LittleEndian.AppendUint32(buf, m.Level)
	buf = binary.LittleEndian.AppendUint32(buf, m.MinVersion)
	buf = binary.LittleEndian.AppendUint32(buf, m.MaxVersion)
	buf = binary.LittleEndian.AppendUint64(buf, m.TotalCount)
	return binary.LittleEndian.AppendUint64(buf, uint64(m.IndexOffset))
}

func decodeMeta(buf []byte) Meta {
	return Meta{
		Format:      binary.LittleEndian.Uint16(buf[0:2]),
		Level:       binary.LittleEndian.Uint32(buf[2:6]),
		MinVersion:  binary.LittleEndian.Uint32(buf[6:10]),
		MaxVersion:  binary.LittleEndian.Uint32(buf[10:14]),
		TotalCount:  binary.LittleEndian.Uint64(buf[14:22]),
		IndexOffset: int64(binary.LittleEndian.Uint64(buf[22:30])),
	}
}

// Block is an open, immutable block file
type Block struct {
	Meta
	Name string
	Path string

	cmp     keys.Comparator
	offsets []int64
	bloom   *BloomFilter

	mu   sync.Mutex
	file *os.File
}

// BloomPath returns the sidecar filter path for a block file
func BloomPath(path string) string {
	return path + bloomSuffix
}

// Open loads the header and sparse index of dir/name
func Open(dir, name string, cmp keys.Comparator) (*Block, error) {
	path := filepath.Join(dir, name)
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to open block %s", path), err)
	}

	b := &Block{
		Name: name,
		Path: path,
		cmp:  cmp,
		file: file,
	}
	if err := b.load(); err != nil {
		file.Close()
		return nil, err
	}

	// A missing or damaged filter only costs extra reads.
	if bf, err := LoadBloomFilter(BloomPath(path)); err == nil {
		b.bloom = bf
	}
	return b, nil
}

func (b *Block) load() error {
	info, err := b.file.Stat()
	if err != nil {
		return errors.Filesystem("failed to stat block", err)
	}
	size := info.Size()
	if size < HeaderSize+8 {
		return errors.CorruptedData(fmt.Sprintf("block %s too short: %d bytes", b.Path, size), nil)
	}

	var head [HeaderSize]byte
	if _, err := b.file.ReadAt(head[:], 0); err != nil {
		return errors.CorruptedData(fmt.Sprintf("block %s: unreadable header", b.Path), err)
	}
	b.Meta = decodeMeta(head[:])
	if b.Format != FormatVersion {
		return errors.CorruptedData(fmt.Sprintf("block %s: unknown format %d", b.Path, b.Format), nil)
	}
	if b.IndexOffset < HeaderSize || b.IndexOffset+8 > size {
		return errors.CorruptedData(fmt.Sprintf("block %s: index offset %d out of range", b.Path, b.IndexOffset), nil)
	}

	index := make([]byte, size-b.IndexOffset)
	if _, err := b.file.ReadAt(index, b.IndexOffset); err != nil && err != io.EOF {
		return errors.CorruptedData(fmt.Sprintf("block %s: unreadable index", b.Path), err)
	}
	count := binary.LittleEndian.Uint64(index[0:8])
	if uint64(len(index)-8) != count*8 {
		return errors.CorruptedData(fmt.Sprintf("block %s: index holds %d bytes for %d keys", b.Path, len(index)-8, count), nil)
	}

	b.offsets = make([]int64, count)
	prev := int64(HeaderSize - 1)
	for i := range b.offsets {
		off := int64(binary.LittleEndian.Uint64(index[8+8*i:]))
		if off <= prev || off >= b.IndexOffset {
			return errors.CorruptedData(fmt.Sprintf("block %s: offset %d out of order", b.Path, off), nil)
		}
		b.offsets[i] = off
		prev = off
	}
	return nil
}

// KeyCount returns the number of distinct keys in the block
func (b *Block) KeyCount() int {
	return len(b.offsets)
}

// Close releases the file handle
func (b *Block) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

// Remove unlinks a block file and its filter. Missing files are ignored.
func Remove(dir, name string) error {
	path := filepath.Join(dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Filesystem(fmt.Sprintf("failed to remove block %s", path), err)
	}
	if err := os.Remove(BloomPath(path)); err != nil && !os.IsNotExist(err) {
		return errors.Filesystem(fmt.Sprintf("failed to remove bloom filter of %s", path), err)
	}
	return nil
}

// readerAt returns the open file, failing once the block is closed
func (b *Block) readerAt() (io.ReaderAt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil, errors.Filesystem(fmt.Sprintf("block %s is closed", b.Path), os.ErrClosed)
	}
	return b.file, nil
}
