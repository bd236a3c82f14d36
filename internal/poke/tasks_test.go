package poke

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/pokebot/pkg/jobmgr"
)

func TestRepeatTask_PacesAndCounts(t *testing.T) {
	var calls atomic.Int32
	task := RepeatTask{
		Count:    3,
		Interval: 20 * time.Millisecond,
		Do: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}

	start := time.Now()
	done, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, done)
	assert.EqualValues(t, 3, calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "every action waits one interval")
}

func TestRepeatTask_FailuresDoNotStopTheRun(t *testing.T) {
	var calls atomic.Int32
	task := RepeatTask{
		Count: 4,
		Do: func(context.Context) error {
			if calls.Add(1)%2 == 0 {
				return errors.New("rate limited")
			}
			return nil
		},
	}

	done, err := task.Run(context.Background())
	assert.Equal(t, 2, done)
	assert.ErrorContains(t, err, "rate limited")
	assert.EqualValues(t, 4, calls.Load())
}

func TestRepeatTask_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	task := RepeatTask{
		Count:    100,
		Interval: 10 * time.Millisecond,
		Do: func(context.Context) error {
			if calls.Add(1) == 2 {
				cancel()
			}
			return nil
		},
	}

	done, err := task.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, done)
}

func TestTasks_OnePerTargetAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	tasks := NewTasks(ctx, zerolog.Nop())

	long := RepeatTask{Count: 1000, Interval: 5 * time.Millisecond, Do: func(context.Context) error { return nil }}
	require.NoError(t, tasks.Start("g1", "u1", long))
	assert.ErrorIs(t, tasks.Start("g1", "u1", long), jobmgr.ErrRunning)
	require.NoError(t, tasks.Start("g1", "u2", long))
	assert.Equal(t, []string{"poke:g1:u1", "poke:g1:u2"}, tasks.Running())

	require.NoError(t, tasks.Stop("g1", "u1"))

	cancel()
	tasks.Wait()
	assert.Empty(t, tasks.Running())
}
