// Package database coordinates the set of tables that make up a node's
// state so they commit and revert to the same version together.
package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/pairdb/chainstore/internal/errors"
	"github.com/devrev/pairdb/chainstore/internal/table"
	"github.com/devrev/pairdb/chainstore/internal/util/workerpool"
)

// Config holds database configuration
type Config struct {
	// Dir holds one subdirectory per table
	Dir string

	// Workers bounds parallel table opens and reverts
	Workers int

	TableOptions *table.Options
	Logger       *zap.Logger
}

// DataBase owns a set of tables
type DataBase struct {
	config *Config
	logger *zap.Logger
	pool   *workerpool.WorkerPool

	mu     sync.RWMutex
	tables map[string]*table.Table
	order  []string
}

// New creates a database with no tables
func New(cfg *Config) *DataBase {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("component", "database"))

	return &DataBase{
		config: cfg,
		logger: logger,
		pool: workerpool.NewWorkerPool(&workerpool.Config{
			Name:       "revert",
			MaxWorkers: cfg.Workers,
			Logger:     logger,
		}),
		tables: make(map[string]*table.Table),
	}
}

// Add takes ownership of an open table
func (db *DataBase) Add(t *table.Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[t.Name()]; exists {
		return errors.InvalidArgument(fmt.Sprintf("table %s already added", t.Name()), nil)
	}
	db.tables[t.Name()] = t
	db.order = append(db.order, t.Name())
	return nil
}

// Open opens the named tables under the configured directory in parallel
// and adds them. On failure every table opened by this call is closed.
func (db *DataBase) Open(ctx context.Context, names ...string) error {
	opened := make([]*table.Table, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(db.config.Workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := table.Open(filepath.Join(db.config.Dir, name), db.config.TableOptions)
			if err != nil {
				return fmt.Errorf("open table %s: %w", name, err)
			}
			opened[i] = t
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		for _, t := range opened {
			if err = db.Add(t); err != nil {
				break
			}
		}
	}
	if err != nil {
		db.mu.Lock()
		for _, t := range opened {
			if t == nil {
				continue
			}
			if db.tables[t.Name()] == t {
				delete(db.tables, t.Name())
				db.order = removeName(db.order, t.Name())
			}
			t.Close()
		}
		db.mu.Unlock()
		return err
	}

	db.logger.Info("Opened tables", zap.Strings("tables", names))
	return nil
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// Table returns the table with the given name
func (db *DataBase) Table(name string) (*table.Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tables[name]
	return t, ok
}

// Tables returns every table in the order they were added
func (db *DataBase) Tables() []*table.Table {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*table.Table, len(db.order))
	for i, name := range db.order {
		out[i] = db.tables[name]
	}
	return out
}

// Commit commits version on every table in order and stops at the first
// failure
func (db *DataBase) Commit(version uint32) error {
	for _, t := range db.Tables() {
		if err := t.Commit(version); err != nil {
			return fmt.Errorf("commit table %s: %w", t.Name(), err)
		}
	}
	return nil
}

// Revert reverts every table to version in parallel. Every table is
// attempted; all failures are returned together.
func (db *DataBase) Revert(ctx context.Context, version uint32) error {
	start := time.Now()
	tables := db.Tables()

	tasks := make([]workerpool.Task, len(tables))
	for i, t := range tables {
		t := t
		tasks[i] = workerpool.Task{
			ID: "revert-" + t.Name(),
			Fn: func(context.Context) error {
				return t.Revert(version)
			},
		}
	}

	var err error
	for i, terr := range db.pool.RunAll(ctx, tasks) {
		if terr != nil {
			err = multierr.Append(err, fmt.Errorf("revert table %s: %w", tables[i].Name(), terr))
		}
	}
	if err != nil {
		return err
	}

	stats := db.pool.Stats()
	db.logger.Info("Reverted tables",
		zap.Uint32("version", version),
		zap.Int("tables", len(tables)),
		zap.Uint64("pool_failed_tasks", stats.FailedTasks),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// MinVersion returns the lowest committed version across tables
func (db *DataBase) MinVersion() (uint32, bool) {
	tables := db.Tables()
	if len(tables) == 0 {
		return 0, false
	}
	lowest := tables[0].Version()
	for _, t := range tables[1:] {
		if v := t.Version(); v < lowest {
			lowest = v
		}
	}
	return lowest, true
}

// Recover reverts every table to the lowest committed version among them,
// restoring a consistent cross-table state after an unclean shutdown. It
// returns that version.
func (db *DataBase) Recover(ctx context.Context) (uint32, error) {
	version, ok := db.MinVersion()
	if !ok {
		return 0, nil
	}
	db.logger.Info("Recovering tables", zap.Uint32("version", version))
	if err := db.Revert(ctx, version); err != nil {
		return 0, err
	}
	return version, nil
}

// Close stops the worker pool and closes every table
func (db *DataBase) Close() error {
	err := db.pool.Stop(10 * time.Second)

	db.mu.Lock()
	defer db.mu.Unlock()
	for _, name := range db.order {
		err = multierr.Append(err, db.tables[name].Close())
	}
	db.tables = make(map[string]*table.Table)
	db.order = nil
	return err
}
