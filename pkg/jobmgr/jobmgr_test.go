package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStartAsync_RejectsDuplicateName(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), nil)
	release := make(chan struct{})
	require.NoError(t, m.StartAsync("a", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err := m.StartAsync("a", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRunning)
	assert.Equal(t, []string{"a"}, m.List())
	assert.Equal(t, "Running jobs: a", m.Status())

	close(release)
	m.Wait()
	assert.Empty(t, m.List())
	assert.Equal(t, "No jobs are running.", m.Status())
}

func TestStop_CancelsJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var events []string
	m := NewManager(context.Background(), func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	})

	require.NoError(t, m.StartAsync("b", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, m.Stop("b"))
	assert.ErrorIs(t, m.Stop("b"), ErrNotRunning)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"running:b", "error:b:context canceled"}, events)
}

func TestStop_RestartUnderSameNameIsTracked(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), nil)
	firstDone := make(chan struct{})
	require.NoError(t, m.StartAsync("c", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		close(firstDone)
		return nil
	}))
	require.NoError(t, m.Stop("c"))

	release := make(chan struct{})
	require.NoError(t, m.StartAsync("c", func(ctx context.Context) error {
		<-release
		return nil
	}))

	<-firstDone
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{"c"}, m.List(), "old job must not untrack the new one")

	close(release)
	m.Wait()
}

func TestManagerContext_StopsJobsAndRefusesNew(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, nil)
	require.NoError(t, m.StartAsync("d", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	cancel()
	m.Wait()

	err := m.StartAsync("e", func(context.Context) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}
