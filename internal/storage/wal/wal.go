// Package wal implements the per-table write-ahead log.
//
// The log is a plain sequence of records in the block record format. Control
// markers (see record.Revert) are interleaved with data. A log is replayed
// once at startup and replaced by a fresh file after every flush.
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/storage/record"
	"go.uber.org/zap"
)

// WAL is an append-only durability log
type WAL struct {
	config  *Config
	path    string
	file    *os.File
	writer  *bufio.Writer
	size    int64
	logger  *zap.Logger
	scratch []byte
	mu      sync.Mutex
}

// Config holds write-ahead log configuration
type Config struct {
	// SyncWrites fsyncs after every append instead of only on Sync
	SyncWrites bool
	BufferSize int
}

// ReplayStats summarizes one replay pass
type ReplayStats struct {
	Records   int
	Reverts   int
	Truncated bool
	// ValidSize is the offset replay stopped at
	ValidSize int64
}

// FileName returns the log file name for a log id
func FileName(id uint64) string {
	return fmt.Sprintf("wal-%06d.dat", id)
}

// Open opens or creates the log at path
func Open(path string, cfg *Config, logger *zap.Logger) (*WAL, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Filesystem(fmt.Sprintf("failed to open wal %s", path), err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Filesystem(fmt.Sprintf("failed to stat wal %s", path), err)
	}

	return &WAL{
		config: cfg,
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, bufSize),
		size:   info.Size(),
		logger: logger,
	}, nil
}

// Path returns the log file path
func (w *WAL) Path() string {
	return w.path
}

// Size returns the logical log size, including buffered bytes
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Append appends a record to the log
func (w *WAL) Append(r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.Filesystem(fmt.Sprintf("wal %s is closed", w.path), os.ErrClosed)
	}

	w.scratch = record.Append(w.scratch[:0], r)
	if _, err := w.writer.Write(w.scratch); err != nil {
		return errors.Filesystem("failed to write to wal", err)
	}
	w.size += int64(len(w.scratch))

	if w.config.SyncWrites {
		return w.sync()
	}
	return nil
}

// AppendRevert logs a revert marker and makes it durable
func (w *WAL) AppendRevert(target uint32) error {
	if err := w.Append(record.Revert(target)); err != nil {
		return err
	}
	return w.Sync()
}

// Sync flushes buffered records and fsyncs the file
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.Filesystem(fmt.Sprintf("wal %s is closed", w.path), os.ErrClosed)
	}
	return w.sync()
}

func (w *WAL) sync() error {
	if err := w.writer.Flush(); err != nil {
		return errors.Filesystem("failed to flush wal", err)
	}
	if err := w.file.Sync(); err != nil {
		return errors.Filesystem("failed to sync wal", err)
	}
	return nil
}

// Replay feeds every well-formed record from the start of the log to fn.
// Decoding stops at the first malformed record; the log is truncated there
// so new appends continue from the last good offset.
func (w *WAL) Replay(fn func(record.Record)) (ReplayStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var stats ReplayStats
	if err := w.writer.Flush(); err != nil {
		return stats, errors.Filesystem("failed to flush wal", err)
	}

	rd := record.NewReader(io.NewSectionReader(w.file, 0, w.size), 0, w.size)
	for {
		res := rd.Next()
		if res.Status == record.StatusEndOfLog {
			stats.ValidSize = res.Offset
			break
		}
		if res.Status == record.StatusCorrupt {
			stats.ValidSize = res.Offset
			stats.Truncated = true
			w.logger.Warn("Truncating wal at malformed record",
				zap.String("path", w.path),
				zap.Int64("offset", res.Offset),
				zap.Int64("size", w.size),
				zap.Error(res.Err))
			break
		}

		if _, ok := res.Record.RevertTarget(); ok {
			stats.Reverts++
		} else {
			stats.Records++
		}
		fn(res.Record)
	}

	if stats.Truncated {
		if err := w.file.Truncate(stats.ValidSize); err != nil {
			return stats, errors.Filesystem("failed to truncate wal", err)
		}
		if err := w.file.Sync(); err != nil {
			return stats, errors.Filesystem("failed to sync wal", err)
		}
		w.size = stats.ValidSize
	}
	return stats, nil
}

// Close flushes, syncs and closes the log
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.sync()
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = errors.Filesystem("failed to close wal", cerr)
	}
	w.file = nil
	return err
}

// Remove closes the log without syncing and unlinks it
func (w *WAL) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Filesystem(fmt.Sprintf("failed to remove wal %s", w.path), err)
	}
	return nil
}
