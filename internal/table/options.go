package table

import (
	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/metrics"
	"github.com/devrev/pairdb/chainstore/internal/storage/diskmanager"
)

// Options configures a Table
type Options struct {
	// Comparator orders keys; keys.Default when nil
	Comparator keys.Comparator

	// FlushThreshold is the memtable size in bytes above which Commit flushes
	FlushThreshold int64

	// CompactionFactor is the number of equal-level blocks merged at once
	CompactionFactor int

	// SyncWrites fsyncs the WAL on every insert
	SyncWrites    bool
	WALBufferSize int

	BloomFilterFP float64

	// CacheSize is the number of latest values cached from blocks; 0 disables
	CacheSize int

	MaxKeySize   int
	MaxValueSize int

	// DebugLog tees table logs into <dir>/debug.log
	DebugLog bool

	// Disk, when set, refuses block writes on a full volume
	Disk *diskmanager.DiskManager

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns the options used when Open receives nil
func DefaultOptions() *Options {
	opts := &Options{DebugLog: true}
	opts.setDefaults()
	return opts
}

func (o *Options) setDefaults() {
	if o.Comparator == nil {
		o.Comparator = keys.Default
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 4 * 1024 * 1024
	}
	if o.CompactionFactor < 2 {
		o.CompactionFactor = 4
	}
	if o.WALBufferSize <= 0 {
		o.WALBufferSize = 64 * 1024
	}
	if o.BloomFilterFP <= 0 || o.BloomFilterFP >= 1 {
		o.BloomFilterFP = 0.01
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}
