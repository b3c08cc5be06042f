// Package record implements the entry encoding shared by block files and the
// write-ahead log:
//
//	[version:u32][key_len:u32][key_bytes][value_len:u32][value_bytes]
//
// All integers are little endian. A record whose version is RevertVersion and
// whose key is "revert" is a control marker whose value is the target version.
package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/devrev/pairdb/chainstore/internal/keys"
)

const (
	// RevertVersion marks a control record in the WAL
	RevertVersion = math.MaxUint32

	// headerSize is version + key_len; value_len follows the key
	headerSize = 4 + keys.PrefixSize
	lenSize    = keys.PrefixSize
)

var revertKey = []byte("revert")

// Record is one versioned entry
type Record struct {
	Version uint32
	Key     []byte
	Value   []byte
}

// Revert builds a revert marker for the given target version
func Revert(target uint32) Record {
	return Record{
		Version: RevertVersion,
		Key:     revertKey,
		Value:   binary.LittleEndian.AppendUint32(nil, target),
	}
}

// RevertTarget returns the target version if r is a revert marker
func (r *Record) RevertTarget() (uint32, bool) {
	if r.Version != RevertVersion || !bytes.Equal(r.Key, revertKey) || len(r.Value) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.Value), true
}

// EncodedSize returns the number of bytes Append writes for r
func (r *Record) EncodedSize() int {
	return Size(len(r.Key), len(r.Value))
}

// Size returns the encoded size of a record with the given payload lengths
func Size(keyLen, valueLen int) int {
	return headerSize + keyLen + lenSize + valueLen
}

// Append encodes r onto dst
func Append(dst []byte, r Record) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, r.Version)
	dst = keys.ByteKey(r.Key).AppendTo(dst)
	return keys.ByteValue(r.Value).AppendTo(dst)
}

// Status classifies the outcome of decoding one record
type Status int

const (
	StatusOK Status = iota
	// StatusEndOfLog means the input ended cleanly on a record boundary
	StatusEndOfLog
	// StatusCorrupt means the bytes at Offset do not form a complete record
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEndOfLog:
		return "end_of_log"
	case StatusCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the decode outcome of Reader.Next
type Result struct {
	Status Status
	Record Record
	// Offset is where the record (or the corruption) starts
	Offset int64
	// Err describes why a record is corrupt
	Err error
}

var (
	errEmptyKey   = errors.New("zero length key")
	errEmptyValue = errors.New("zero length value")
	errTooLong    = errors.New("length exceeds remaining input")
)

// Reader decodes consecutive records from a stream of known size
type Reader struct {
	r      *bufio.Reader
	offset int64
	size   int64
}

// NewReader decodes records from r, which holds size bytes starting at base
func NewReader(r io.Reader, base, size int64) *Reader {
	bufSize := 64 * 1024
	if size < int64(bufSize) {
		bufSize = int(size)
	}
	return &Reader{
		r:      bufio.NewReaderSize(r, bufSize),
		offset: base,
		size:   base + size,
	}
}

// Offset returns the position after the last decoded record
func (rd *Reader) Offset() int64 {
	return rd.offset
}

// Next decodes the next record. A data record must carry a non-empty key
// and value; anything else is reported as corrupt.
func (rd *Reader) Next() Result {
	start := rd.offset
	if start >= rd.size {
		return Result{Status: StatusEndOfLog, Offset: start}
	}

	var head [headerSize]byte
	if _, err := io.ReadFull(rd.r, head[:]); err != nil {
		if err == io.EOF {
			return Result{Status: StatusEndOfLog, Offset: start}
		}
		return corrupt(start, err)
	}
	version := binary.LittleEndian.Uint32(head[0:4])
	keyLen := int64(binary.LittleEndian.Uint32(head[4:8]))
	pos := start + headerSize

	if keyLen == 0 {
		return corrupt(start, errEmptyKey)
	}
	if keyLen+lenSize > rd.size-pos {
		return corrupt(start, errTooLong)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(rd.r, key); err != nil {
		return corrupt(start, err)
	}
	pos += keyLen

	var lenBuf [lenSize]byte
	if _, err := io.ReadFull(rd.r, lenBuf[:]); err != nil {
		return corrupt(start, err)
	}
	valueLen := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	pos += lenSize

	if valueLen == 0 {
		return corrupt(start, errEmptyValue)
	}
	if valueLen > rd.size-pos {
		return corrupt(start, errTooLong)
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(rd.r, value); err != nil {
		return corrupt(start, err)
	}
	pos += valueLen

	rd.offset = pos
	return Result{
		Status: StatusOK,
		Record: Record{Version: version, Key: key, Value: value},
		Offset: start,
	}
}

func corrupt(offset int64, err error) Result {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return Result{Status: StatusCorrupt, Offset: offset, Err: err}
}
