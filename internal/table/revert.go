package table

import (
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/storage/block"
)

// Revert rolls the table back so that only entries written below version
// survive, and makes version the committed version. Reverting to the current
// version discards uncommitted writes.
//
// A failure while replacing block files leaves the table unusable until it
// is reopened; reopening resumes the revert.
func (t *Table) Revert(version uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.Closed(t.name)
	}
	if version > t.index.Version {
		return errors.NonMonotonicVersion("revert", version, t.index.Version)
	}
	if t.readers > 0 {
		t.metrics.RecordLockedWrite(t.name)
		return errors.WriteWhileLocked(t.name, t.readers)
	}
	return t.revertLocked(version)
}

// hasEntriesFrom reports whether any layer holds a version >= version
func (t *Table) hasEntriesFrom(version uint32) bool {
	if v, ok := t.mem.MaxVersion(); ok && v >= version {
		return true
	}
	for _, b := range t.blocks {
		if b.TotalCount > 0 && b.MaxVersion >= version {
			return true
		}
	}
	return false
}

func (t *Table) revertLocked(version uint32) error {
	if version == t.index.Version && !t.hasEntriesFrom(version) {
		return nil
	}
	start := time.Now()

	// The marker is replayed after a crash; the index records the target
	// before any block changes so reopening redoes the work below.
	if err := t.wal.AppendRevert(version); err != nil {
		return err
	}
	if version != t.index.Version {
		next := t.index.Clone()
		next.Version = version
		if err := t.persist(next); err != nil {
			return err
		}
	}

	// current mirrors t.blocks with rewritten handles swapped in, so a
	// failure leaves the table pointing at open files only.
	current := append([]*block.Block(nil), t.blocks...)
	kept := make([]*block.Block, 0, len(t.blocks))
	var doomed []*block.Block
	rewritten := 0
	for i, b := range t.blocks {
		switch {
		case b.MinVersion >= version:
			doomed = append(doomed, b)
		case b.MaxVersion >= version:
			nb, err := block.RewriteBelow(b, version, t.opts.BloomFilterFP)
			if err != nil {
				t.logger.Error("Failed to rewrite block during revert",
					zap.String("block", b.Name),
					zap.Uint32("version", version),
					zap.Error(err))
				current[i] = nil
				t.blocks = withoutNil(current)
				return err
			}
			current[i] = nb
			kept = append(kept, nb)
			rewritten++
		default:
			kept = append(kept, b)
		}
	}

	dropped := t.mem.Revert(version)

	next := t.index.Clone()
	next.Blocks = make([]string, len(kept))
	for i, b := range kept {
		next.Blocks[i] = b.Name
	}
	for _, b := range doomed {
		next.DeleteFiles = append(next.DeleteFiles, b.Name)
	}
	if err := t.persist(next); err != nil {
		t.blocks = current
		return err
	}
	t.blocks = kept

	for _, b := range doomed {
		if err := b.Close(); err != nil {
			t.logger.Warn("Failed to close reverted block", zap.String("block", b.Name), zap.Error(err))
		}
	}
	if len(doomed) > 0 {
		if err := t.unlinkDeleted(); err != nil {
			return err
		}
	}
	t.cache.purge()

	t.metrics.RecordRevert(t.name, version, dropped, time.Since(start))
	t.updateMetrics()
	t.logger.Info("Reverted table",
		zap.Uint32("version", version),
		zap.Int("deleted_blocks", len(doomed)),
		zap.Int("rewritten_blocks", rewritten),
		zap.Int("dropped_entries", dropped),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// withoutNil drops nil entries in place
func withoutNil(blocks []*block.Block) []*block.Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
