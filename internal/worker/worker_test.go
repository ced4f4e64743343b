package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepOnceRecordsStatsOnSuccess(t *testing.T) {
	w := New("t", time.Hour, func(ctx context.Context) error { return nil })

	err := w.StepOnce(context.Background())

	require.NoError(t, err)
	stats := w.Stats()
	assert.EqualValues(t, 1, stats.Ticks)
	assert.EqualValues(t, 0, stats.Errors)
	assert.Empty(t, stats.LastErr)
	assert.False(t, stats.LastRunAt.IsZero())
}

func TestStepOnceRecordsStatsOnError(t *testing.T) {
	w := New("t", time.Hour, func(ctx context.Context) error { return errors.New("boom") })

	err := w.StepOnce(context.Background())

	require.Error(t, err)
	stats := w.Stats()
	assert.EqualValues(t, 1, stats.Ticks)
	assert.EqualValues(t, 1, stats.Errors)
	assert.Equal(t, "boom", stats.LastErr)
}

func TestStartRunsRepeatedlyUntilStopNow(t *testing.T) {
	var calls atomic.Int64
	w := New("t", 10*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	w.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	w.StopNow()
	seen := calls.Load()
	require.Eventually(t, func() bool { return true }, 50*time.Millisecond, 10*time.Millisecond)
	assert.False(t, w.Stats().Running)
	// no further calls sneak in after StopNow settles
	assert.LessOrEqual(t, calls.Load(), seen+1)
}

func TestStartIsNoOpWhenAlreadyRunning(t *testing.T) {
	w := New("t", time.Hour, func(ctx context.Context) error { return nil })
	w.Start(context.Background())
	w.Start(context.Background())
	assert.True(t, w.Stats().Running)
	w.StopNow()
}

func TestStopNowCancelsPromptlyDuringLongSleep(t *testing.T) {
	w := New("t", time.Hour, func(ctx context.Context) error { return nil })
	w.Start(context.Background())
	time.Sleep(5 * time.Millisecond)

	start := time.Now()
	w.StopNow()
	require.Eventually(t, func() bool { return !w.Stats().Running }, time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}
