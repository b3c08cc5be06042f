package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainstore"

// Metrics holds all Prometheus metrics for the table store. Every series is
// labeled by table name. A nil *Metrics records nothing.
type Metrics struct {
	// Point operation metrics
	InsertsTotal      *prometheus.CounterVec
	InsertBytes       *prometheus.HistogramVec
	LookupsTotal      *prometheus.CounterVec
	CommitsTotal      *prometheus.CounterVec
	CommittedVersion  *prometheus.GaugeVec
	RevertsTotal      *prometheus.CounterVec
	RevertDuration    *prometheus.HistogramVec
	RevertedEntries   *prometheus.CounterVec
	OpenIterators     *prometheus.GaugeVec
	LockedWritesTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Storage metrics
	MemTableSizeBytes    *prometheus.GaugeVec
	MemTableEntriesTotal *prometheus.GaugeVec
	FlushesTotal         *prometheus.CounterVec
	FlushDuration        *prometheus.HistogramVec
	BlocksByLevel        *prometheus.GaugeVec

	// WAL metrics
	WALAppendsTotal   *prometheus.CounterVec
	WALBytesTotal     *prometheus.CounterVec
	WALSyncsTotal     *prometheus.CounterVec
	WALSyncDuration   *prometheus.HistogramVec
	WALReplayedTotal  *prometheus.CounterVec
	WALTruncatedTotal *prometheus.CounterVec

	// Compaction metrics
	CompactionsTotal       *prometheus.CounterVec
	CompactionDuration     *prometheus.HistogramVec
	CompactionBlocksInput  *prometheus.HistogramVec
	CompactionRecordsTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg means the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	table := []string{"table"}

	return &Metrics{
		InsertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "inserts_total",
			Help:      "Total number of inserts",
		}, table),
		InsertBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "insert_bytes",
			Help:      "Histogram of encoded insert sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 8),
		}, table),
		LookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "lookups_total",
			Help:      "Total number of point lookups by the layer that answered",
		}, []string{"table", "source"}),
		CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "commits_total",
			Help:      "Total number of committed versions",
		}, table),
		CommittedVersion: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "committed_version",
			Help:      "Current committed version",
		}, table),
		RevertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "reverts_total",
			Help:      "Total number of reverts",
		}, table),
		RevertDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "revert_duration_seconds",
			Help:      "Histogram of revert durations",
			Buckets:   prometheus.DefBuckets,
		}, table),
		RevertedEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "reverted_entries_total",
			Help:      "Total number of in-memory entries dropped by reverts",
		}, table),
		OpenIterators: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "open_iterators",
			Help:      "Number of open iterators",
		}, table),
		LockedWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "locked_writes_total",
			Help:      "Total number of mutations rejected because iterators were open",
		}, table),

		// Cache metrics
		CacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of read cache hits",
		}, table),
		CacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of read cache misses",
		}, table),

		// Storage metrics
		MemTableSizeBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memtable",
			Name:      "size_bytes",
			Help:      "Current memtable size in bytes",
		}, table),
		MemTableEntriesTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memtable",
			Name:      "entries_total",
			Help:      "Current number of entries in memtable",
		}, table),
		FlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memtable",
			Name:      "flushes_total",
			Help:      "Total number of memtable flushes",
		}, table),
		FlushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memtable",
			Name:      "flush_duration_seconds",
			Help:      "Histogram of memtable flush durations",
			Buckets:   prometheus.DefBuckets,
		}, table),
		BlocksByLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "count_by_level",
			Help:      "Number of blocks by level",
		}, []string{"table", "level"}),

		// WAL metrics
		WALAppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "appends_total",
			Help:      "Total number of wal appends",
		}, table),
		WALBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "bytes_total",
			Help:      "Total bytes appended to the wal",
		}, table),
		WALSyncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "syncs_total",
			Help:      "Total number of wal syncs",
		}, table),
		WALSyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "sync_duration_seconds",
			Help:      "Histogram of wal sync durations",
			Buckets:   prometheus.DefBuckets,
		}, table),
		WALReplayedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "replayed_records_total",
			Help:      "Total number of records replayed at startup",
		}, table),
		WALTruncatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wal",
			Name:      "truncated_tails_total",
			Help:      "Total number of malformed wal tails truncated at startup",
		}, table),

		// Compaction metrics
		CompactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compaction",
			Name:      "jobs_total",
			Help:      "Total number of compactions by output level",
		}, []string{"table", "level"}),
		CompactionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compaction",
			Name:      "job_duration_seconds",
			Help:      "Histogram of compaction durations",
			Buckets:   prometheus.DefBuckets,
		}, table),
		CompactionBlocksInput: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compaction",
			Name:      "blocks_input",
			Help:      "Histogram of input blocks per compaction",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, table),
		CompactionRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compaction",
			Name:      "records_written_total",
			Help:      "Total records written by compactions",
		}, table),
	}
}

// RecordInsert records an insert of the given encoded size
func (m *Metrics) RecordInsert(table string, size int) {
	if m == nil {
		return
	}
	m.InsertsTotal.WithLabelValues(table).Inc()
	m.InsertBytes.WithLabelValues(table).Observe(float64(size))
}

// RecordLookup records which layer answered a point lookup
func (m *Metrics) RecordLookup(table, source string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(table, source).Inc()
}

// RecordCommit records a committed version
func (m *Metrics) RecordCommit(table string, version uint32) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(table).Inc()
	m.CommittedVersion.WithLabelValues(table).Set(float64(version))
}

// RecordRevert records a completed revert
func (m *Metrics) RecordRevert(table string, version uint32, dropped int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RevertsTotal.WithLabelValues(table).Inc()
	m.RevertDuration.WithLabelValues(table).Observe(duration.Seconds())
	m.RevertedEntries.WithLabelValues(table).Add(float64(dropped))
	m.CommittedVersion.WithLabelValues(table).Set(float64(version))
}

// SetOpenIterators records the number of open iterators
func (m *Metrics) SetOpenIterators(table string, n int) {
	if m == nil {
		return
	}
	m.OpenIterators.WithLabelValues(table).Set(float64(n))
}

// RecordLockedWrite records a mutation rejected by open iterators
func (m *Metrics) RecordLockedWrite(table string) {
	if m == nil {
		return
	}
	m.LockedWritesTotal.WithLabelValues(table).Inc()
}

// RecordCacheHit records a read cache hit
func (m *Metrics) RecordCacheHit(table string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(table).Inc()
}

// RecordCacheMiss records a read cache miss
func (m *Metrics) RecordCacheMiss(table string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(table).Inc()
}

// SetMemTable records the current memtable footprint
func (m *Metrics) SetMemTable(table string, sizeBytes int64, entries int) {
	if m == nil {
		return
	}
	m.MemTableSizeBytes.WithLabelValues(table).Set(float64(sizeBytes))
	m.MemTableEntriesTotal.WithLabelValues(table).Set(float64(entries))
}

// RecordFlush records a memtable flush
func (m *Metrics) RecordFlush(table string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(table).Inc()
	m.FlushDuration.WithLabelValues(table).Observe(duration.Seconds())
}

// SetBlocksByLevel replaces the per-level block counts of a table
func (m *Metrics) SetBlocksByLevel(table string, counts map[uint32]int) {
	if m == nil {
		return
	}
	m.BlocksByLevel.DeletePartialMatch(prometheus.Labels{"table": table})
	for level, n := range counts {
		m.BlocksByLevel.WithLabelValues(table, strconv.FormatUint(uint64(level), 10)).Set(float64(n))
	}
}

// RecordWALAppend records a wal append
func (m *Metrics) RecordWALAppend(table string, size int) {
	if m == nil {
		return
	}
	m.WALAppendsTotal.WithLabelValues(table).Inc()
	m.WALBytesTotal.WithLabelValues(table).Add(float64(size))
}

// RecordWALSync records a wal sync
func (m *Metrics) RecordWALSync(table string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WALSyncsTotal.WithLabelValues(table).Inc()
	m.WALSyncDuration.WithLabelValues(table).Observe(duration.Seconds())
}

// RecordReplay records a startup wal replay
func (m *Metrics) RecordReplay(table string, records int, truncated bool) {
	if m == nil {
		return
	}
	m.WALReplayedTotal.WithLabelValues(table).Add(float64(records))
	if truncated {
		m.WALTruncatedTotal.WithLabelValues(table).Inc()
	}
}

// RecordCompaction records a merge of inputs blocks into one block at level
func (m *Metrics) RecordCompaction(table string, level uint32, inputs int, records uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.CompactionsTotal.WithLabelValues(table, strconv.FormatUint(uint64(level), 10)).Inc()
	m.CompactionDuration.WithLabelValues(table).Observe(duration.Seconds())
	m.CompactionBlocksInput.WithLabelValues(table).Observe(float64(inputs))
	m.CompactionRecordsTotal.WithLabelValues(table).Add(float64(records))
}
