package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Trigger(t *testing.T) {
	m := NewManager(context.Background())

	var calls atomic.Int32
	m.Register("count", 0, func(context.Context, zerolog.Logger) error {
		calls.Add(1)
		return nil
	})
	m.Register("fail", 0, func(context.Context, zerolog.Logger) error {
		return errors.New("boom")
	})

	require.NoError(t, m.Trigger("count"))
	require.NoError(t, m.Trigger("fail"))
	assert.Equal(t, int32(1), calls.Load())

	status := m.ListStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "count", status[0].Name)
	assert.Equal(t, "success", status[0].LastResult)
	assert.Equal(t, 1, status[0].Runs)
	assert.True(t, status[0].NextRun.IsZero())
	assert.Equal(t, "failed: boom", status[1].LastResult)

	var notFound TaskNotFoundError
	assert.ErrorAs(t, m.Trigger("missing"), &notFound)
}

func TestManager_Schedules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx)

	var calls atomic.Int32
	m.Register("tick", 10*time.Millisecond, func(context.Context, zerolog.Logger) error {
		calls.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	m.Wait()

	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no runs after the context ended")
}

func TestRunnableTask_SkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	task := &RunnableTask{
		Name:    "slow",
		Timeout: time.Second,
		Handler: func(context.Context, zerolog.Logger) error {
			calls.Add(1)
			close(started)
			<-release
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		task.Run(context.Background())
		close(done)
	}()
	<-started
	assert.True(t, task.Status().Running)

	task.Run(context.Background()) // returns immediately
	close(release)
	<-done

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, task.Status().Running)
}
