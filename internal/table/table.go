// Package table implements a versioned, crash-safe key/value table.
//
// Writes land in a write-ahead log and an in-memory buffer tagged with the
// table's current version. Commit seals the buffer under a new version and
// flushes it into an immutable block once it grows past a threshold. Blocks
// are merged into higher levels as they accumulate. Revert rolls every layer
// back to an earlier version, and reads can be pinned to any version.
package table

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/metrics"
	"github.com/devrev/pairdb/chainstore/internal/storage/block"
	"github.com/devrev/pairdb/chainstore/internal/storage/memtable"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
	"github.com/devrev/pairdb/chainstore/internal/storage/tableindex"
	"github.com/devrev/pairdb/chainstore/internal/storage/wal"
	"github.com/devrev/pairdb/chainstore/internal/validation"
)

var (
	blockFilePattern = regexp.MustCompile(`^\d+\.dat(\.bloom)?$`)
	walFilePattern   = regexp.MustCompile(`^wal-\d+\.dat$`)
)

// Table is a versioned key/value store rooted in one directory.
//
// Reads share the table; mutations are exclusive. While any Iterator is open,
// Insert, Flush, Revert and CheckRewrite fail with WriteWhileLocked instead of
// blocking.
type Table struct {
	name      string
	dir       string
	opts      *Options
	cmp       keys.Comparator
	logger    *zap.Logger
	closeLog  func() error
	metrics   *metrics.Metrics
	validator *validation.Validator

	mu      sync.RWMutex
	index   *tableindex.TableIndex
	blocks  []*block.Block // oldest first, parallel to index.Blocks
	mem     *memtable.MemTable
	wal     *wal.WAL
	cache   *readCache
	readers int
	closed  bool
}

// Open opens the table in dir, creating it when missing, and recovers any
// state left by an unclean shutdown.
func Open(dir string, opts *Options) (*Table, error) {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		o := *opts
		opts = &o
		opts.setDefaults()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to create table directory %s", dir), err)
	}

	name := filepath.Base(dir)
	logger, closeLog, err := newTableLogger(opts.Logger, dir, name, opts.DebugLog)
	if err != nil {
		return nil, err
	}
	cache, err := newReadCache(opts.CacheSize)
	if err != nil {
		closeLog()
		return nil, errors.InvalidArgument("invalid cache size", err)
	}

	t := &Table{
		name:      name,
		dir:       dir,
		opts:      opts,
		cmp:       opts.Comparator,
		logger:    logger,
		closeLog:  closeLog,
		metrics:   opts.Metrics,
		validator: validation.NewValidatorWithLimits(opts.MaxKeySize, opts.MaxValueSize),
		mem:       memtable.NewMemTable(opts.Comparator),
		cache:     cache,
	}

	if err := t.bootstrap(); err != nil {
		t.logger.Error("Failed to open table", zap.Error(err))
		t.release()
		return nil, err
	}
	return t, nil
}

// bootstrap rebuilds in-memory state from index.dat, the block files and
// the active WAL.
func (t *Table) bootstrap() error {
	start := time.Now()

	ti, created, err := tableindex.Load(t.dir)
	if err != nil {
		return err
	}
	if created {
		if err := ti.Save(t.dir); err != nil {
			return err
		}
	}
	t.index = ti

	for _, name := range ti.Blocks {
		b, err := block.Open(t.dir, name, t.cmp)
		if err != nil {
			return err
		}
		t.blocks = append(t.blocks, b)
	}

	if len(ti.DeleteFiles) > 0 {
		if err := t.unlinkDeleted(); err != nil {
			return err
		}
	}
	t.removeStrayFiles()

	w, err := wal.Open(filepath.Join(t.dir, wal.FileName(ti.WALID)), &wal.Config{
		SyncWrites: t.opts.SyncWrites,
		BufferSize: t.opts.WALBufferSize,
	}, t.logger)
	if err != nil {
		return err
	}
	t.wal = w

	stats, err := w.Replay(func(r record.Record) {
		if target, ok := r.RevertTarget(); ok {
			t.mem.Revert(target)
			return
		}
		t.mem.Put(r.Key, r.Version, r.Value)
	})
	if err != nil {
		return err
	}
	t.metrics.RecordReplay(t.name, stats.Records, stats.Truncated)

	if err := t.revertLocked(ti.Version); err != nil {
		return err
	}
	if err := t.compactLocked(); err != nil {
		return err
	}

	t.updateMetrics()
	t.logger.Info("Opened table",
		zap.Uint32("version", t.index.Version),
		zap.Int("blocks", len(t.blocks)),
		zap.Int("replayed", stats.Records),
		zap.Int("replayed_reverts", stats.Reverts),
		zap.Bool("truncated", stats.Truncated),
		zap.Int64("wal_bytes", stats.ValidSize),
		zap.Int("memtable_entries", t.mem.Count()),
		zap.Int("memtable_keys", t.mem.Keys()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// removeStrayFiles deletes leftovers of interrupted writes: temp files,
// retired WALs and block files the index does not reference.
func (t *Table) removeStrayFiles() {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		t.logger.Warn("Failed to list table directory", zap.Error(err))
		return
	}

	live := make(map[string]bool, len(t.index.Blocks))
	for _, name := range t.index.Blocks {
		live[name] = true
	}
	activeWAL := wal.FileName(t.index.WALID)

	for _, e := range entries {
		name := e.Name()
		stray := false
		switch {
		case e.IsDir():
		case strings.HasSuffix(strings.TrimSuffix(name, ".bloom"), block.TempSuffix):
			stray = true
		case walFilePattern.MatchString(name):
			stray = name != activeWAL
		case blockFilePattern.MatchString(name):
			stray = !live[strings.TrimSuffix(name, ".bloom")]
		}
		if !stray {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, name)); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("Failed to remove stray file", zap.String("file", name), zap.Error(err))
			continue
		}
		t.logger.Debug("Removed stray file", zap.String("file", name))
	}
}

// Name returns the table name, the base name of its directory
func (t *Table) Name() string {
	return t.name
}

// Dir returns the table directory
func (t *Table) Dir() string {
	return t.dir
}

// Version returns the committed version
func (t *Table) Version() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index.Version
}

// Levels returns the level of every block, oldest first
func (t *Table) Levels() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	levels := make([]uint32, len(t.blocks))
	for i, b := range t.blocks {
		levels[i] = b.Level
	}
	return levels
}

// MemTableSize returns the estimated size of unflushed entries in bytes
func (t *Table) MemTableSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mem.Size()
}

// Err returns nil while the table can serve reads and writes
func (t *Table) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return errors.Closed(t.name)
	}
	return nil
}

// checkWritable must be called with mu held exclusively
func (t *Table) checkWritable() error {
	if t.closed {
		return errors.Closed(t.name)
	}
	if t.readers > 0 {
		t.metrics.RecordLockedWrite(t.name)
		return errors.WriteWhileLocked(t.name, t.readers)
	}
	return nil
}

// Insert writes value under key at the current version. Re-inserting a key
// at the same version overwrites it.
func (t *Table) Insert(key, value []byte) error {
	if err := t.validator.ValidateWrite(key, value); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkWritable(); err != nil {
		return err
	}

	rec := record.Record{
		Version: t.index.Version,
		Key:     bytes.Clone(key),
		Value:   bytes.Clone(value),
	}
	if err := t.wal.Append(rec); err != nil {
		return err
	}
	t.mem.Put(rec.Key, rec.Version, rec.Value)
	t.cache.remove(rec.Key)

	size := rec.EncodedSize()
	t.metrics.RecordInsert(t.name, size)
	t.metrics.RecordWALAppend(t.name, size)
	return nil
}

// Find returns the newest value of key
func (t *Table) Find(key []byte) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, false, errors.Closed(t.name)
	}

	if e, ok := t.mem.Get(key); ok {
		t.metrics.RecordLookup(t.name, "memtable")
		return bytes.Clone(e.Value), true, nil
	}

	if t.cache != nil {
		if v, ok := t.cache.get(key); ok {
			t.metrics.RecordCacheHit(t.name)
			t.metrics.RecordLookup(t.name, "cache")
			return bytes.Clone(v), true, nil
		}
		t.metrics.RecordCacheMiss(t.name)
	}

	for i := len(t.blocks) - 1; i >= 0; i-- {
		rec, ok, err := t.blocks[i].Find(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			t.cache.add(rec.Key, rec.Value)
			t.metrics.RecordLookup(t.name, "block")
			return bytes.Clone(rec.Value), true, nil
		}
	}

	t.metrics.RecordLookup(t.name, "miss")
	return nil, false, nil
}

// FindAt returns the value of key written at the greatest version that does
// not exceed maxVersion
func (t *Table) FindAt(key []byte, maxVersion uint32) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, false, errors.Closed(t.name)
	}

	if e, ok := t.mem.GetAt(key, maxVersion); ok {
		t.metrics.RecordLookup(t.name, "memtable")
		return bytes.Clone(e.Value), true, nil
	}

	for i := len(t.blocks) - 1; i >= 0; i-- {
		rec, ok, err := t.blocks[i].FindAt(key, maxVersion)
		if err != nil {
			return nil, false, err
		}
		if ok {
			t.metrics.RecordLookup(t.name, "block")
			return rec.Value, true, nil
		}
	}

	t.metrics.RecordLookup(t.name, "miss")
	return nil, false, nil
}

// Commit seals everything written so far under version, which must exceed
// the current version. The WAL is synced first; the memtable is flushed when
// it has outgrown the flush threshold and no iterator is open.
func (t *Table) Commit(version uint32) error {
	if err := t.validator.ValidateVersion(version); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.Closed(t.name)
	}
	if version <= t.index.Version {
		return errors.NonMonotonicVersion("commit", version, t.index.Version)
	}

	if err := t.syncWAL(); err != nil {
		return err
	}

	if t.mem.Size() > t.opts.FlushThreshold {
		if t.readers > 0 {
			t.logger.Debug("Skipping flush while iterators are open",
				zap.Int("readers", t.readers),
				zap.Int64("memtable_bytes", t.mem.Size()))
		} else {
			if err := t.flushLocked(version); err != nil {
				return err
			}
			t.metrics.RecordCommit(t.name, version)
			return nil
		}
	}

	next := t.index.Clone()
	next.Version = version
	if err := t.persist(next); err != nil {
		return err
	}
	t.metrics.RecordCommit(t.name, version)
	return nil
}

func (t *Table) syncWAL() error {
	start := time.Now()
	if err := t.wal.Sync(); err != nil {
		return err
	}
	t.metrics.RecordWALSync(t.name, time.Since(start))
	return nil
}

// persist makes next durable and installs it as the current index
func (t *Table) persist(next *tableindex.TableIndex) error {
	if err := next.Save(t.dir); err != nil {
		return err
	}
	t.index = next
	return nil
}

// unlinkDeleted removes every file queued in delete_files and clears the
// queue
func (t *Table) unlinkDeleted() error {
	for _, name := range t.index.DeleteFiles {
		if err := block.Remove(t.dir, name); err != nil {
			return err
		}
		t.logger.Debug("Removed block", zap.String("block", name))
	}
	next := t.index.Clone()
	next.DeleteFiles = nil
	return t.persist(next)
}

func (t *Table) updateMetrics() {
	if t.metrics == nil {
		return
	}
	counts := make(map[uint32]int)
	for _, b := range t.blocks {
		counts[b.Level]++
	}
	t.metrics.SetBlocksByLevel(t.name, counts)
	t.metrics.SetMemTable(t.name, t.mem.Size(), t.mem.Count())
}

// Close syncs the WAL and releases every file handle. Iterators still open
// on the table stop returning data.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	if t.readers > 0 {
		t.logger.Warn("Closing table with open iterators", zap.Int("readers", t.readers))
	}
	t.logger.Info("Closing table", zap.Uint32("version", t.index.Version))
	return t.release()
}

func (t *Table) release() error {
	t.closed = true

	var err error
	if t.wal != nil {
		err = multierr.Append(err, t.wal.Close())
	}
	for _, b := range t.blocks {
		err = multierr.Append(err, b.Close())
	}
	t.blocks = nil
	t.cache.purge()
	return multierr.Append(err, t.closeLog())
}
