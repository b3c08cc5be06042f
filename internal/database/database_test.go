package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/table"
)

func newTestDB(t *testing.T, dir string) *DataBase {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := New(&Config{
		Dir:          dir,
		Workers:      2,
		TableOptions: &table.Options{Logger: logger},
		Logger:       logger,
	})
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDataBase_OpenAndCommit(t *testing.T) {
	db := newTestDB(t, t.TempDir())
	require.NoError(t, db.Open(context.Background(), "blocks", "state", "receipts"))

	tables := db.Tables()
	require.Len(t, tables, 3)
	assert.Equal(t, "blocks", tables[0].Name())
	assert.Equal(t, "state", tables[1].Name())
	assert.Equal(t, "receipts", tables[2].Name())

	state, ok := db.Table("state")
	require.True(t, ok)
	require.NoError(t, state.Insert([]byte("k"), []byte("v")))

	require.NoError(t, db.Commit(1))
	for _, tbl := range db.Tables() {
		assert.Equal(t, uint32(1), tbl.Version())
	}

	err := db.Commit(1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNonMonotonicVersion))

	_, ok = db.Table("missing")
	assert.False(t, ok)
}

func TestDataBase_AddDuplicate(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)

	tbl, err := table.Open(filepath.Join(dir, "state"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Add(tbl))

	err = db.Add(tbl)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
	assert.Len(t, db.Tables(), 1)
}

func TestDataBase_OpenDuplicateNames(t *testing.T) {
	db := newTestDB(t, t.TempDir())

	require.NoError(t, db.Open(context.Background(), "state"))
	assert.Error(t, db.Open(context.Background(), "blocks", "state"))

	// A failed open leaves previously opened tables in place.
	names := make([]string, 0)
	for _, tbl := range db.Tables() {
		names = append(names, tbl.Name())
	}
	assert.Equal(t, []string{"state"}, names)
}

func TestDataBase_Revert(t *testing.T) {
	db := newTestDB(t, t.TempDir())
	require.NoError(t, db.Open(context.Background(), "a", "b", "c"))

	for v := uint32(1); v <= 3; v++ {
		for _, tbl := range db.Tables() {
			require.NoError(t, tbl.Insert([]byte("height"), []byte{byte(v)}))
		}
		require.NoError(t, db.Commit(v))
	}

	require.NoError(t, db.Revert(context.Background(), 2))
	for _, tbl := range db.Tables() {
		assert.Equal(t, uint32(2), tbl.Version())
		v, ok, err := tbl.Find([]byte("height"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{2}, v)
	}

	err := db.Revert(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNonMonotonicVersion))
}

func TestDataBase_RevertCollectsEveryFailure(t *testing.T) {
	db := newTestDB(t, t.TempDir())
	require.NoError(t, db.Open(context.Background(), "a", "b"))
	require.NoError(t, db.Commit(2))

	a, _ := db.Table("a")
	it, err := a.NewIterator()
	require.NoError(t, err)
	defer it.Close()

	err = db.Revert(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWriteWhileLocked))

	// b is reverted even though a failed.
	b, _ := db.Table("b")
	assert.Equal(t, uint32(1), b.Version())
	assert.Equal(t, uint32(2), a.Version())
}

func TestDataBase_Recover(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)

	_, ok := db.MinVersion()
	assert.False(t, ok)
	v, err := db.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	require.NoError(t, db.Open(context.Background(), "blocks", "state"))
	blocks, _ := db.Table("blocks")
	state, _ := db.Table("state")

	require.NoError(t, blocks.Insert([]byte("b"), []byte("1")))
	require.NoError(t, state.Insert([]byte("s"), []byte("1")))
	require.NoError(t, db.Commit(1))

	// A crash between per-table commits leaves the tables apart.
	require.NoError(t, blocks.Insert([]byte("b"), []byte("2")))
	require.NoError(t, blocks.Commit(2))
	require.NoError(t, db.Close())

	db = newTestDB(t, dir)
	require.NoError(t, db.Open(context.Background(), "blocks", "state"))
	lowest, ok := db.MinVersion()
	require.True(t, ok)
	assert.Equal(t, uint32(1), lowest)

	v, err = db.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	blocks, _ = db.Table("blocks")
	assert.Equal(t, uint32(1), blocks.Version())
	got, ok, err := blocks.Find([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)
}
