package table

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/metrics"
	"github.com/devrev/pairdb/chainstore/internal/storage/diskmanager"
	"github.com/devrev/pairdb/chainstore/internal/storage/tableindex"
	"github.com/devrev/pairdb/chainstore/internal/storage/wal"
)

func testOptions(t *testing.T) *Options {
	return &Options{
		Logger:   zaptest.NewLogger(t),
		DebugLog: false,
	}
}

func openTable(t *testing.T, dir string, opts *Options) *Table {
	t.Helper()
	if opts == nil {
		opts = testOptions(t)
	}
	tbl, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func u32(v uint32) []byte {
	return keys.Uint32{}.Encode(v)
}

func requireValue(t *testing.T, tbl *Table, key, want []byte) {
	t.Helper()
	got, ok, err := tbl.Find(key)
	require.NoError(t, err)
	require.True(t, ok, "key %x not found", key)
	assert.Equal(t, want, got)
}

func requireValueAt(t *testing.T, tbl *Table, key []byte, version uint32, want []byte) {
	t.Helper()
	got, ok, err := tbl.FindAt(key, version)
	require.NoError(t, err)
	require.True(t, ok, "key %x not found at %d", key, version)
	assert.Equal(t, want, got)
}

func requireAbsent(t *testing.T, tbl *Table, key []byte) {
	t.Helper()
	_, ok, err := tbl.Find(key)
	require.NoError(t, err)
	assert.False(t, ok, "key %x unexpectedly found", key)
}

func TestTable_OpenEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blocks")
	tbl := openTable(t, dir, nil)

	assert.Equal(t, "blocks", tbl.Name())
	assert.Equal(t, dir, tbl.Dir())
	assert.Equal(t, uint32(0), tbl.Version())
	assert.Empty(t, tbl.Levels())
	requireAbsent(t, tbl, []byte("missing"))

	_, err := os.Stat(filepath.Join(dir, tableindex.FileName))
	assert.NoError(t, err)
}

func TestTable_DurabilityRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	for i := uint32(0); i < 200; i++ {
		require.NoError(t, tbl.Insert(u32(i), u32(i*10)))
	}
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())

	for i := uint32(100); i < 300; i++ {
		require.NoError(t, tbl.Insert(u32(i), u32(i*100)))
	}
	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Close())

	tbl = openTable(t, dir, nil)
	assert.Equal(t, uint32(2), tbl.Version())
	for i := uint32(0); i < 300; i++ {
		want := u32(i * 10)
		if i >= 100 {
			want = u32(i * 100)
		}
		requireValue(t, tbl, u32(i), want)
	}
}

func TestTable_UncommittedWritesDroppedOnReopen(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	require.NoError(t, tbl.Insert([]byte("kept"), []byte("v")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Insert([]byte("lost"), []byte("v")))
	require.NoError(t, tbl.Close())

	tbl = openTable(t, dir, nil)
	requireValue(t, tbl, []byte("kept"), []byte("v"))
	requireAbsent(t, tbl, []byte("lost"))
}

func TestTable_PointInTimeRead(t *testing.T) {
	for _, flush := range []bool{false, true} {
		t.Run(fmt.Sprintf("flush=%v", flush), func(t *testing.T) {
			tbl := openTable(t, t.TempDir(), nil)
			key := []byte("K")

			require.NoError(t, tbl.Commit(1))
			require.NoError(t, tbl.Insert(key, []byte("V1")))
			require.NoError(t, tbl.Commit(2))
			if flush {
				require.NoError(t, tbl.Flush())
			}
			require.NoError(t, tbl.Insert(key, []byte("V2")))
			require.NoError(t, tbl.Commit(3))
			if flush {
				require.NoError(t, tbl.Flush())
			}

			requireValue(t, tbl, key, []byte("V2"))
			requireValueAt(t, tbl, key, 1, []byte("V1"))
			requireValueAt(t, tbl, key, 2, []byte("V2"))

			_, ok, err := tbl.FindAt(key, 0)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTable_VersionChecks(t *testing.T) {
	tbl := openTable(t, t.TempDir(), nil)
	require.NoError(t, tbl.Commit(5))

	err := tbl.Commit(5)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNonMonotonicVersion))
	err = tbl.Commit(3)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNonMonotonicVersion))
	err = tbl.Revert(6)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNonMonotonicVersion))

	err = tbl.Commit(^uint32(0))
	assert.Error(t, err)
	assert.Equal(t, uint32(5), tbl.Version())
}

func TestTable_InvalidWrites(t *testing.T) {
	opts := testOptions(t)
	opts.MaxKeySize = 8
	opts.MaxValueSize = 16
	tbl := openTable(t, t.TempDir(), opts)

	assert.True(t, errors.HasCode(tbl.Insert(nil, []byte("v")), errors.ErrCodeInvalidArgument))
	assert.True(t, errors.HasCode(tbl.Insert([]byte("k"), nil), errors.ErrCodeInvalidArgument))
	assert.True(t, errors.HasCode(tbl.Insert([]byte("123456789"), []byte("v")), errors.ErrCodeKeyTooLarge))
	assert.True(t, errors.HasCode(tbl.Insert([]byte("k"), make([]byte, 17)), errors.ErrCodeValueTooLarge))
}

func TestTable_RevertIdempotence(t *testing.T) {
	tbl := openTable(t, t.TempDir(), nil)

	require.NoError(t, tbl.Insert([]byte("a"), []byte("a0")))
	require.NoError(t, tbl.Insert([]byte("b"), []byte("b0")))
	require.NoError(t, tbl.Commit(1))

	// Reverting to the current version changes nothing.
	require.NoError(t, tbl.Revert(1))
	assert.Equal(t, uint32(1), tbl.Version())
	requireValue(t, tbl, []byte("a"), []byte("a0"))

	require.NoError(t, tbl.Insert([]byte("a"), []byte("a1")))
	require.NoError(t, tbl.Insert([]byte("c"), []byte("c1")))
	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.Insert([]byte("b"), []byte("b2")))
	require.NoError(t, tbl.Commit(3))

	require.NoError(t, tbl.Revert(1))
	assert.Equal(t, uint32(1), tbl.Version())
	requireValue(t, tbl, []byte("a"), []byte("a0"))
	requireValue(t, tbl, []byte("b"), []byte("b0"))
	requireAbsent(t, tbl, []byte("c"))

	require.NoError(t, tbl.Insert([]byte("a"), []byte("a1")))
	require.NoError(t, tbl.Insert([]byte("c"), []byte("c1")))
	require.NoError(t, tbl.Commit(2))
	requireValue(t, tbl, []byte("a"), []byte("a1"))
	requireValue(t, tbl, []byte("b"), []byte("b0"))
	requireValue(t, tbl, []byte("c"), []byte("c1"))
	requireValueAt(t, tbl, []byte("a"), 0, []byte("a0"))
}

func TestTable_RevertMarkerReplay(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	// Nothing is flushed: every write below lives only in the WAL.
	require.NoError(t, tbl.Insert([]byte("k"), []byte("v0")))
	require.NoError(t, tbl.Insert([]byte("a"), []byte("a0")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Insert([]byte("k"), []byte("v1")))
	require.NoError(t, tbl.Insert([]byte("b"), []byte("b1")))
	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Insert([]byte("k"), []byte("v2")))
	require.NoError(t, tbl.Insert([]byte("c"), []byte("c2")))
	require.NoError(t, tbl.Commit(3))

	require.NoError(t, tbl.Revert(2))
	require.NoError(t, tbl.Insert([]byte("k"), []byte("v2-new")))
	require.NoError(t, tbl.Insert([]byte("d"), []byte("d2")))
	require.NoError(t, tbl.Commit(3))
	require.NoError(t, tbl.Close())

	tbl = openTable(t, dir, nil)
	assert.Equal(t, uint32(3), tbl.Version())
	assert.Empty(t, tbl.Levels())

	requireValue(t, tbl, []byte("k"), []byte("v2-new"))
	requireValue(t, tbl, []byte("a"), []byte("a0"))
	requireValue(t, tbl, []byte("b"), []byte("b1"))
	requireValue(t, tbl, []byte("d"), []byte("d2"))
	requireAbsent(t, tbl, []byte("c"))

	requireValueAt(t, tbl, []byte("k"), 0, []byte("v0"))
	requireValueAt(t, tbl, []byte("k"), 1, []byte("v1"))
	requireValueAt(t, tbl, []byte("k"), 2, []byte("v2-new"))
	requireValueAt(t, tbl, []byte("b"), 1, []byte("b1"))
	requireValueAt(t, tbl, []byte("d"), 2, []byte("d2"))

	for _, tc := range []struct {
		key     string
		version uint32
	}{
		{"b", 0},
		{"c", 2},
		{"c", 3},
		{"d", 1},
	} {
		_, ok, err := tbl.FindAt([]byte(tc.key), tc.version)
		require.NoError(t, err)
		assert.False(t, ok, "%s at %d", tc.key, tc.version)
	}
}

func TestTable_RevertDropsBlocks(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, nil)

	for v := uint32(1); v <= 3; v++ {
		require.NoError(t, tbl.Insert([]byte("k"), u32(v)))
		require.NoError(t, tbl.Insert(u32(v), []byte("x")))
		require.NoError(t, tbl.Commit(v))
		require.NoError(t, tbl.Flush())
	}
	require.Len(t, tbl.Levels(), 3)

	require.NoError(t, tbl.Revert(1))
	assert.Len(t, tbl.Levels(), 1)
	requireValue(t, tbl, []byte("k"), u32(1))
	requireAbsent(t, tbl, u32(2))
	requireAbsent(t, tbl, u32(3))

	_, err := os.Stat(filepath.Join(dir, tableindex.BlockName(1)))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, tableindex.BlockName(2)))
	assert.True(t, os.IsNotExist(err))
}

func TestTable_FlushTransparency(t *testing.T) {
	tbl := openTable(t, t.TempDir(), nil)

	for i := uint32(0); i < 50; i++ {
		require.NoError(t, tbl.Insert(u32(i), u32(i)))
	}
	require.NoError(t, tbl.Commit(1))
	for i := uint32(0); i < 50; i += 3 {
		require.NoError(t, tbl.Insert(u32(i), u32(i+1000)))
	}
	require.NoError(t, tbl.Commit(2))

	snapshot := func() ([][]byte, map[string][]byte) {
		var order [][]byte
		values := make(map[string][]byte)
		require.NoError(t, tbl.Scan(nil, nil, func(k, v []byte) bool {
			order = append(order, append([]byte(nil), k...))
			values[string(k)] = append([]byte(nil), v...)
			return true
		}))
		return order, values
	}

	beforeOrder, beforeValues := snapshot()
	require.Len(t, beforeOrder, 50)
	require.NoError(t, tbl.Flush())
	assert.Zero(t, tbl.MemTableSize())
	afterOrder, afterValues := snapshot()

	assert.Equal(t, beforeOrder, afterOrder)
	assert.Equal(t, beforeValues, afterValues)
	for i := uint32(0); i < 50; i++ {
		v, ok, err := tbl.FindAt(u32(i), 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, u32(i), v)
	}
}

func TestTable_CommitFlushesPastThreshold(t *testing.T) {
	opts := testOptions(t)
	opts.FlushThreshold = 256
	tbl := openTable(t, t.TempDir(), opts)

	for i := uint32(0); i < 10; i++ {
		require.NoError(t, tbl.Insert(u32(i), u32(i)))
	}
	require.NoError(t, tbl.Commit(1))
	assert.Empty(t, tbl.Levels())

	for i := uint32(10); i < 40; i++ {
		require.NoError(t, tbl.Insert(u32(i), u32(i)))
	}
	require.NoError(t, tbl.Commit(2))
	assert.Len(t, tbl.Levels(), 1)
	assert.Zero(t, tbl.MemTableSize())
	assert.Equal(t, uint32(2), tbl.Version())
}

func TestTable_ConcreteScenario(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	for i := uint32(0); i < 100; i++ {
		require.NoError(t, tbl.Insert(u32(i*2), u32(i)))
	}
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())

	for i := uint32(200); i >= 2; i -= 2 {
		require.NoError(t, tbl.Insert(u32(i-2), u32(i/2)))
	}
	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Flush())

	check := func(tbl *Table) {
		for i := uint32(0); i < 100; i++ {
			requireValue(t, tbl, u32(i*2), u32(i+1))
			requireValueAt(t, tbl, u32(i*2), 0, u32(i))
		}
		requireAbsent(t, tbl, u32(500))
	}
	check(tbl)

	require.NoError(t, tbl.Close())
	check(openTable(t, dir, nil))
}

func TestTable_WALTailCorruption(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	for i := uint32(0); i < 100; i++ {
		require.NoError(t, tbl.Insert(u32(i), []byte(fmt.Sprintf("value-%03d", i))))
	}
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Close())

	path := filepath.Join(dir, wal.FileName(0))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 256)
	for i := len(data) - 256; i < len(data); i++ {
		data[i] = 0
	}
	require.NoError(t, os.WriteFile(path, data, 0644))

	tbl = openTable(t, dir, nil)
	assert.Equal(t, uint32(1), tbl.Version())

	found := 0
	require.NoError(t, tbl.Scan(nil, nil, func(k, v []byte) bool {
		assert.NotEmpty(t, k)
		assert.NotEmpty(t, v)
		found++
		return true
	}))
	assert.Greater(t, found, 80)
	assert.Less(t, found, 100)

	// The surviving prefix is intact and writable.
	requireValue(t, tbl, u32(0), []byte("value-000"))
	require.NoError(t, tbl.Insert(u32(999), []byte("after")))
	require.NoError(t, tbl.Commit(2))
}

func TestTable_CompactionCascade(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(t)
	opts.CompactionFactor = 2
	tbl, err := Open(dir, opts)
	require.NoError(t, err)

	for v := uint32(1); v <= 7; v++ {
		require.NoError(t, tbl.Insert(u32(v), u32(v)))
		require.NoError(t, tbl.Insert([]byte("shared"), u32(v)))
		require.NoError(t, tbl.Commit(v))
		require.NoError(t, tbl.Flush())
	}
	assert.Equal(t, []uint32{2, 1, 0}, tbl.Levels())

	check := func(tbl *Table) {
		requireValue(t, tbl, []byte("shared"), u32(7))
		for v := uint32(1); v <= 7; v++ {
			requireValue(t, tbl, u32(v), u32(v))
			// Inserts made after Commit(v-1) carry version v-1.
			requireValueAt(t, tbl, []byte("shared"), v-1, u32(v))
		}
	}
	check(tbl)

	require.NoError(t, tbl.CheckRewrite())
	assert.Equal(t, []uint32{2, 1, 0}, tbl.Levels())

	require.NoError(t, tbl.Close())
	tbl = openTable(t, dir, opts)
	assert.Equal(t, []uint32{2, 1, 0}, tbl.Levels())
	check(tbl)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	blocks := 0
	for _, e := range entries {
		if blockFilePattern.MatchString(e.Name()) && filepath.Ext(e.Name()) == ".dat" {
			blocks++
		}
	}
	assert.Equal(t, 3, blocks)
}

func TestTable_CrashResumedRevert(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)

	require.NoError(t, tbl.Insert([]byte("k"), []byte("old")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.Insert([]byte("k"), []byte("new")))
	require.NoError(t, tbl.Insert([]byte("j"), []byte("new")))
	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.Close())

	// Simulate a crash right after a revert persisted its target version.
	ti, _, err := tableindex.Load(dir)
	require.NoError(t, err)
	ti.Version = 1
	require.NoError(t, ti.Save(dir))

	tbl = openTable(t, dir, nil)
	assert.Equal(t, uint32(1), tbl.Version())
	assert.Len(t, tbl.Levels(), 1)
	requireValue(t, tbl, []byte("k"), []byte("old"))
	requireAbsent(t, tbl, []byte("j"))

	_, err = os.Stat(filepath.Join(dir, tableindex.BlockName(1)))
	assert.True(t, os.IsNotExist(err))
}

func TestTable_RemovesStrayFiles(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, testOptions(t))
	require.NoError(t, err)
	require.NoError(t, tbl.Insert([]byte("k"), []byte("v")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.Close())

	stray := []string{
		tableindex.BlockName(42),
		tableindex.BlockName(42) + ".bloom",
		tableindex.BlockName(0) + ".tmp",
		tableindex.BlockName(0) + ".tmp.bloom",
		wal.FileName(0),
		tableindex.FileName + ".tmp",
	}
	for _, name := range stray {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("junk"), 0644))
	}

	tbl = openTable(t, dir, nil)
	requireValue(t, tbl, []byte("k"), []byte("v"))

	for _, name := range stray {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}
	_, err = os.Stat(filepath.Join(dir, tableindex.BlockName(0)))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, tableindex.BlockName(0)+".bloom"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, wal.FileName(1)))
	assert.NoError(t, err)
}

func TestTable_ReadCache(t *testing.T) {
	opts := testOptions(t)
	opts.CacheSize = 16
	tbl := openTable(t, t.TempDir(), opts)

	require.NoError(t, tbl.Insert([]byte("k"), []byte("v0")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())

	requireValue(t, tbl, []byte("k"), []byte("v0"))
	assert.Equal(t, 1, tbl.cache.len())
	requireValue(t, tbl, []byte("k"), []byte("v0"))

	require.NoError(t, tbl.Insert([]byte("k"), []byte("v1")))
	assert.Equal(t, 0, tbl.cache.len())
	requireValue(t, tbl, []byte("k"), []byte("v1"))
	assert.Equal(t, 0, tbl.cache.len())

	require.NoError(t, tbl.Commit(2))
	require.NoError(t, tbl.Flush())
	requireValue(t, tbl, []byte("k"), []byte("v1"))
	assert.Equal(t, 1, tbl.cache.len())

	require.NoError(t, tbl.Revert(1))
	assert.Equal(t, 0, tbl.cache.len())
	requireValue(t, tbl, []byte("k"), []byte("v0"))
}

func TestTable_DebugLog(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(t)
	opts.DebugLog = true
	tbl := openTable(t, dir, opts)
	require.NoError(t, tbl.Close())

	data, err := os.ReadFile(filepath.Join(dir, DebugLogName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Opened table")
}

func TestTable_Closed(t *testing.T) {
	tbl, err := Open(t.TempDir(), testOptions(t))
	require.NoError(t, err)
	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())

	assert.True(t, errors.HasCode(tbl.Insert([]byte("k"), []byte("v")), errors.ErrCodeClosed))
	_, _, err = tbl.Find([]byte("k"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeClosed))
	assert.True(t, errors.HasCode(tbl.Commit(1), errors.ErrCodeClosed))
	_, err = tbl.NewIterator()
	assert.True(t, errors.HasCode(err, errors.ErrCodeClosed))
}

func TestTable_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	opts := testOptions(t)
	opts.Metrics = m
	tbl := openTable(t, filepath.Join(t.TempDir(), "state"), opts)

	require.NoError(t, tbl.Insert([]byte("a"), []byte("1")))
	require.NoError(t, tbl.Insert([]byte("b"), []byte("2")))
	require.NoError(t, tbl.Commit(1))
	require.NoError(t, tbl.Flush())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InsertsTotal.WithLabelValues("state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushesTotal.WithLabelValues("state")))

	it, err := tbl.NewIterator()
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenIterators.WithLabelValues("state")))
	assert.Error(t, tbl.Insert([]byte("c"), []byte("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockedWritesTotal.WithLabelValues("state")))
	require.NoError(t, it.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenIterators.WithLabelValues("state")))
}

func TestTable_FlushRefusedOnFullDisk(t *testing.T) {
	dir := t.TempDir()
	// Zero thresholds trip the circuit breaker on any volume.
	disk, err := diskmanager.NewDiskManager(&diskmanager.DiskManagerConfig{
		DataDir:       dir,
		CheckInterval: time.Hour,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	opts := testOptions(t)
	opts.Disk = disk
	tbl := openTable(t, dir, opts)

	require.NoError(t, tbl.Insert(u32(1), []byte("one")))
	err = tbl.Flush()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientSpace))

	// The memtable survives a refused flush.
	assert.Empty(t, tbl.Levels())
	requireValue(t, tbl, u32(1), []byte("one"))
}
