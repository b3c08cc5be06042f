package table

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/storage/block"
	"github.com/devrev/pairdb/chainstore/internal/storage/memtable"
	"github.com/devrev/pairdb/chainstore/internal/storage/tableindex"
	"github.com/devrev/pairdb/chainstore/internal/storage/wal"
)

// Flush writes the memtable into a new level-0 block, starts a fresh WAL
// and runs compaction. It is a no-op when the memtable is empty.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.flushLocked(t.index.Version)
}

// flushLocked persists the memtable as a block together with version
func (t *Table) flushLocked(version uint32) error {
	if t.mem.Empty() {
		if version == t.index.Version {
			return nil
		}
		next := t.index.Clone()
		next.Version = version
		return t.persist(next)
	}

	if err := t.opts.Disk.CheckBeforeWrite(uint64(t.mem.Size())); err != nil {
		return err
	}

	start := time.Now()
	name := tableindex.BlockName(t.index.NextBlockID)
	path := filepath.Join(t.dir, name)

	w, err := block.NewWriter(path, &block.WriterConfig{
		Level:         0,
		Comparator:    t.cmp,
		BloomFilterFP: t.opts.BloomFilterFP,
	})
	if err != nil {
		return err
	}
	var addErr error
	t.mem.Ascend(func(e *memtable.Entry) bool {
		addErr = w.Add(e.Record())
		return addErr == nil
	})
	if addErr != nil {
		w.Abort()
		return addErr
	}
	meta, err := w.Finish()
	if err != nil {
		return err
	}

	b, err := block.Open(t.dir, name, t.cmp)
	if err != nil {
		block.Remove(t.dir, name)
		return err
	}

	walID := t.index.WALID + 1
	nextWAL, err := wal.Open(filepath.Join(t.dir, wal.FileName(walID)), &wal.Config{
		SyncWrites: t.opts.SyncWrites,
		BufferSize: t.opts.WALBufferSize,
	}, t.logger)
	if err != nil {
		b.Close()
		block.Remove(t.dir, name)
		return err
	}

	next := t.index.Clone()
	next.Version = version
	next.Blocks = append(next.Blocks, name)
	next.NextBlockID++
	next.WALID = walID
	if err := t.persist(next); err != nil {
		nextWAL.Remove()
		b.Close()
		block.Remove(t.dir, name)
		return err
	}

	prevWAL := t.wal
	t.wal = nextWAL
	if err := prevWAL.Remove(); err != nil {
		t.logger.Warn("Failed to remove retired wal", zap.String("path", prevWAL.Path()), zap.Error(err))
	}
	t.blocks = append(t.blocks, b)
	flushed := t.mem.Count()
	t.mem.Clear()

	t.metrics.RecordFlush(t.name, time.Since(start))
	t.logger.Info("Flushed memtable",
		zap.String("block", name),
		zap.Int("entries", flushed),
		zap.Uint32("min_version", meta.MinVersion),
		zap.Uint32("max_version", meta.MaxVersion),
		zap.Duration("duration", time.Since(start)))

	if err := t.compactLocked(); err != nil {
		return err
	}
	t.updateMetrics()
	return nil
}

// CheckRewrite runs compaction until no level holds more than the
// compaction factor of consecutive blocks.
func (t *Table) CheckRewrite() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := t.compactLocked(); err != nil {
		return err
	}
	t.updateMetrics()
	return nil
}

func (t *Table) compactLocked() error {
	for {
		lo, ok := t.pickCompaction()
		if !ok {
			return nil
		}
		if err := t.mergeBlocks(lo, lo+t.opts.CompactionFactor); err != nil {
			return err
		}
	}
}

// pickCompaction scans from the oldest block for a run of equal-level
// blocks longer than the compaction factor and returns where it starts
func (t *Table) pickCompaction() (int, bool) {
	factor := t.opts.CompactionFactor
	for i := 0; i < len(t.blocks); {
		j := i + 1
		for j < len(t.blocks) && t.blocks[j].Level == t.blocks[i].Level {
			j++
		}
		if j-i > factor {
			return i, true
		}
		i = j
	}
	return 0, false
}

// mergeBlocks replaces blocks[lo:hi] with one block one level up
func (t *Table) mergeBlocks(lo, hi int) error {
	start := time.Now()
	inputs := t.blocks[lo:hi]
	level := inputs[0].Level + 1

	var estimated uint64
	for _, b := range inputs {
		estimated += uint64(b.IndexOffset)
	}
	if err := t.opts.Disk.CheckBeforeWrite(estimated); err != nil {
		return err
	}

	sources := make([]block.MergeSource, len(inputs))
	for i, b := range inputs {
		s, err := b.NewScanner()
		if err != nil {
			return err
		}
		sources[i] = s
	}
	merger := block.NewMerger(t.cmp, sources)

	name := tableindex.BlockName(t.index.NextBlockID)
	w, err := block.NewWriter(filepath.Join(t.dir, name), &block.WriterConfig{
		Level:         level,
		Comparator:    t.cmp,
		BloomFilterFP: t.opts.BloomFilterFP,
	})
	if err != nil {
		return err
	}
	for merger.Next() {
		if err := w.Add(merger.Record()); err != nil {
			w.Abort()
			return err
		}
	}
	if err := merger.Err(); err != nil {
		w.Abort()
		return err
	}
	meta, err := w.Finish()
	if err != nil {
		return err
	}

	merged, err := block.Open(t.dir, name, t.cmp)
	if err != nil {
		block.Remove(t.dir, name)
		return err
	}

	blocks := make([]*block.Block, 0, len(t.blocks)-len(inputs)+1)
	blocks = append(blocks, t.blocks[:lo]...)
	blocks = append(blocks, merged)
	blocks = append(blocks, t.blocks[hi:]...)

	next := t.index.Clone()
	next.NextBlockID++
	next.Blocks = make([]string, len(blocks))
	for i, b := range blocks {
		next.Blocks[i] = b.Name
	}
	for _, b := range inputs {
		next.DeleteFiles = append(next.DeleteFiles, b.Name)
	}
	if err := t.persist(next); err != nil {
		merged.Close()
		block.Remove(t.dir, name)
		return err
	}

	names := make([]string, len(inputs))
	for i, b := range inputs {
		names[i] = b.Name
		if err := b.Close(); err != nil {
			t.logger.Warn("Failed to close compacted block", zap.String("block", b.Name), zap.Error(err))
		}
	}
	t.blocks = blocks
	if err := t.unlinkDeleted(); err != nil {
		return err
	}

	t.metrics.RecordCompaction(t.name, level, len(inputs), meta.TotalCount, time.Since(start))
	t.logger.Info("Compacted blocks",
		zap.Strings("inputs", names),
		zap.String("output", name),
		zap.Uint32("level", level),
		zap.Uint64("records", meta.TotalCount),
		zap.Duration("duration", time.Since(start)))
	return nil
}
