package block

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devrev/pairdb/chainstore/internal/errors"
)

// TempSuffix marks files that are only valid until the next rename
const TempSuffix = ".tmp"

// RewriteBelow replaces b's file with one holding only the records whose
// version is below the given version. The new file is written next to the
// original and renamed over it. b is closed; the returned block replaces it.
func RewriteBelow(b *Block, below uint32, bloomFP float64) (*Block, error) {
	tmpPath := b.Path + TempSuffix
	w, err := NewWriter(tmpPath, &WriterConfig{
		Level:         b.Level,
		Comparator:    b.cmp,
		BloomFilterFP: bloomFP,
	})
	if err != nil {
		return nil, err
	}

	scanner, err := b.NewScanner()
	if err != nil {
		w.Abort()
		return nil, err
	}
	for scanner.Next() {
		rec := scanner.Record()
		if rec.Version >= below {
			continue
		}
		if err := w.Add(rec); err != nil {
			w.Abort()
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		w.Abort()
		return nil, err
	}
	if _, err := w.Finish(); err != nil {
		return nil, err
	}

	if err := b.Close(); err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to close block %s", b.Path), err)
	}
	// Data first: a stale filter is a superset of the rewritten keys.
	if err := os.Rename(tmpPath, b.Path); err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to replace block %s", b.Path), err)
	}
	if err := os.Rename(BloomPath(tmpPath), BloomPath(b.Path)); err != nil && !os.IsNotExist(err) {
		return nil, errors.Filesystem(fmt.Sprintf("failed to replace bloom filter of %s", b.Path), err)
	}
	if err := SyncDir(filepath.Dir(b.Path)); err != nil {
		return nil, err
	}

	return Open(filepath.Dir(b.Path), b.Name, b.cmp)
}

// SyncDir fsyncs a directory so renames and unlinks inside it are durable
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Filesystem(fmt.Sprintf("failed to open directory %s", dir), err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Filesystem(fmt.Sprintf("failed to sync directory %s", dir), err)
	}
	return nil
}
