package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWorkerPool_RunAll(t *testing.T) {
	pool := NewWorkerPool(&Config{Name: "test", MaxWorkers: 3, QueueSize: 2, Logger: zaptest.NewLogger(t)})
	defer pool.Stop(time.Second)

	var ran int32
	boom := errors.New("boom")
	tasks := make([]Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = Task{
			ID: "task",
			Fn: func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				if i == 7 {
					return boom
				}
				return nil
			},
		}
	}

	errs := pool.RunAll(context.Background(), tasks)
	require.Len(t, errs, 10)
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
	for i, err := range errs {
		if i == 7 {
			assert.ErrorIs(t, err, boom)
		} else {
			assert.NoError(t, err)
		}
	}

	stats := pool.Stats()
	assert.Equal(t, uint64(10), stats.TotalTasks)
	assert.Equal(t, uint64(9), stats.CompletedTasks)
	assert.Equal(t, uint64(1), stats.FailedTasks)
}

func TestWorkerPool_PanicBecomesError(t *testing.T) {
	pool := NewWorkerPool(&Config{Name: "panic", MaxWorkers: 1})
	defer pool.Stop(time.Second)

	errs := pool.RunAll(context.Background(), []Task{{
		ID: "bad",
		Fn: func(ctx context.Context) error { panic("oops") },
	}})
	require.Error(t, errs[0])
	assert.Contains(t, errs[0].Error(), "panicked")
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(&Config{Name: "stopped", MaxWorkers: 1})
	require.NoError(t, pool.Stop(time.Second))

	err := pool.SubmitWithContext(context.Background(), Task{ID: "late", Fn: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)

	errs := pool.RunAll(context.Background(), []Task{{ID: "late", Fn: func(ctx context.Context) error { return nil }}})
	assert.Error(t, errs[0])
}
