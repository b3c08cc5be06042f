// Package tableindex persists the small manifest that describes a table on
// disk: the committed version, the live block files, files awaiting deletion
// and the active WAL.
package tableindex

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/util"
)

// FileName is the manifest file inside a table directory
const FileName = "index.dat"

const (
	fieldVersion     protowire.Number = 1
	fieldBlocks      protowire.Number = 2
	fieldNextBlockID protowire.Number = 3
	fieldDeleteFiles protowire.Number = 4
	fieldWALID       protowire.Number = 5
)

// TableIndex is the persisted state of a table
type TableIndex struct {
	Version     uint32
	Blocks      []string // oldest first
	NextBlockID uint64
	DeleteFiles []string
	WALID       uint64
}

// BlockName returns the file name for a block id
func BlockName(id uint64) string {
	return fmt.Sprintf("%06d.dat", id)
}

// Clone returns a deep copy
func (ti *TableIndex) Clone() *TableIndex {
	c := *ti
	c.Blocks = append([]string(nil), ti.Blocks...)
	c.DeleteFiles = append([]string(nil), ti.DeleteFiles...)
	return &c
}

// Marshal encodes the index followed by a CRC32 trailer
func (ti *TableIndex) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ti.Version))
	for _, name := range ti.Blocks {
		b = protowire.AppendTag(b, fieldBlocks, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}
	b = protowire.AppendTag(b, fieldNextBlockID, protowire.VarintType)
	b = protowire.AppendVarint(b, ti.NextBlockID)
	for _, name := range ti.DeleteFiles {
		b = protowire.AppendTag(b, fieldDeleteFiles, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}
	b = protowire.AppendTag(b, fieldWALID, protowire.VarintType)
	b = protowire.AppendVarint(b, ti.WALID)
	return util.AppendChecksum(b)
}

// Unmarshal decodes data produced by Marshal. Unknown fields are skipped.
func Unmarshal(data []byte) (*TableIndex, error) {
	b, ok := util.ValidateAndStripChecksum(data)
	if !ok {
		return nil, errors.CorruptedData("table index checksum mismatch", nil)
	}

	ti := &TableIndex{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.CorruptedData("table index: bad tag", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.CorruptedData("table index: bad version", protowire.ParseError(n))
			}
			ti.Version = uint32(v)
			b = b[n:]
		case num == fieldNextBlockID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.CorruptedData("table index: bad next block id", protowire.ParseError(n))
			}
			ti.NextBlockID = v
			b = b[n:]
		case num == fieldWALID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.CorruptedData("table index: bad wal id", protowire.ParseError(n))
			}
			ti.WALID = v
			b = b[n:]
		case (num == fieldBlocks || num == fieldDeleteFiles) && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, errors.CorruptedData("table index: bad file name", protowire.ParseError(n))
			}
			if num == fieldBlocks {
				ti.Blocks = append(ti.Blocks, s)
			} else {
				ti.DeleteFiles = append(ti.DeleteFiles, s)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, errors.CorruptedData("table index: bad field", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ti, nil
}

// Load reads dir/index.dat. A missing file yields a fresh index and
// created=true.
func Load(dir string) (ti *TableIndex, created bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if os.IsNotExist(err) {
		return &TableIndex{}, true, nil
	}
	if err != nil {
		return nil, false, errors.Filesystem("read table index", err)
	}
	ti, err = Unmarshal(data)
	if err != nil {
		return nil, false, err
	}
	return ti, false, nil
}

// Save writes the index atomically: temp file, fsync, rename, dir fsync.
func (ti *TableIndex) Save(dir string) error {
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Filesystem("create table index", err)
	}
	if _, err := f.Write(ti.Marshal()); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Filesystem("write table index", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Filesystem("sync table index", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Filesystem("close table index", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Filesystem("rename table index", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Filesystem("open table directory", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Filesystem("sync table directory", err)
	}
	return nil
}
