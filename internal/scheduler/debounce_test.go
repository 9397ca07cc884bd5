package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/scheduler"
)

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	var calls atomic.Int32
	d := scheduler.New(scheduler.Config{Window: 50 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer d.Close()

	for range 100 {
		d.Trigger()
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "one trailing flush per window")
	assert.False(t, d.Pending())
}

func TestDebouncer_FlushSeesLatestState(t *testing.T) {
	var (
		mu        sync.Mutex
		counter   int
		persisted int
	)
	d := scheduler.New(scheduler.Config{Window: 20 * time.Millisecond}, func(context.Context) error {
		mu.Lock()
		persisted = counter
		mu.Unlock()
		return nil
	})
	defer d.Close()

	for range 500 {
		mu.Lock()
		counter++
		mu.Unlock()
		d.Trigger()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return persisted == 500
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_CloseFlushesPending(t *testing.T) {
	var calls atomic.Int32
	d := scheduler.New(scheduler.Config{Window: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	d.Trigger()
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), calls.Load())

	// After close, triggers flush synchronously.
	d.Trigger()
	assert.Equal(t, int32(2), calls.Load())
}

func TestDebouncer_CloseWithoutPendingDoesNothing(t *testing.T) {
	var calls atomic.Int32
	d := scheduler.New(scheduler.Config{}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, d.Close())
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, uint64(0), d.Flushes())
}

func TestDebouncer_FlushNow(t *testing.T) {
	var calls atomic.Int32
	d := scheduler.New(scheduler.Config{Window: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer d.Close()

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())

	d.Flush()
	assert.Equal(t, int32(1), calls.Load(), "nothing pending")
}

func TestDebouncer_ErrorsAndPanicsAreContained(t *testing.T) {
	errs := []error{errors.New("disk full"), nil}
	var n atomic.Int32
	d := scheduler.New(scheduler.Config{Window: time.Hour}, func(context.Context) error {
		i := n.Add(1)
		if i == 3 {
			panic("boom")
		}
		return errs[(i-1)%2]
	})

	d.Trigger()
	d.Flush()
	d.Trigger()
	d.Flush()
	d.Trigger()
	assert.NotPanics(t, d.Flush)

	assert.Equal(t, uint64(3), d.Flushes())
	assert.Equal(t, uint64(2), d.Failures())
	require.NoError(t, d.Close())
}

func TestDebouncer_FailedFlushIsRetriedOnClose(t *testing.T) {
	var calls, saved atomic.Int32
	d := scheduler.New(scheduler.Config{Window: time.Hour}, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("database is locked")
		}
		saved.Add(1)
		return nil
	})

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, d.Pending(), "failed flush keeps the state pending")

	require.NoError(t, d.Close())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), saved.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_FailedFlushIsRetriedOnNextTrigger(t *testing.T) {
	var calls atomic.Int32
	d := scheduler.New(scheduler.Config{Window: 10 * time.Millisecond}, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	defer d.Close()

	d.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 1 && d.Pending() }, time.Second, 5*time.Millisecond)

	d.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 2 && !d.Pending() }, time.Second, 5*time.Millisecond)
}
