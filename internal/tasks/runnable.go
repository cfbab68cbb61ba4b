package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type RunnableTask struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Handler  TaskFunc

	registeredAt time.Time

	mu         sync.RWMutex
	running    bool
	runs       int
	lastRun    time.Time
	lastResult string
}

// Run executes the task once unless it is already running.
func (t *RunnableTask) Run(ctx context.Context) {
	l := log.With().Str("task", t.Name).Logger()

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		l.Warn().Msg("task is already running, skipping execution")
		return
	}
	t.running = true
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	err := t.Handler(ctx, l)
	duration := time.Since(start)

	t.mu.Lock()
	t.running = false
	t.runs++
	t.lastRun = time.Now()
	if err != nil {
		t.lastResult = fmt.Sprintf("failed: %v", err)
	} else {
		t.lastResult = "success"
	}
	t.mu.Unlock()

	if err != nil {
		l.Error().Err(err).Dur("duration", duration).Msg("task failed")
	} else {
		l.Debug().Dur("duration", duration).Msg("task completed")
	}
}

func (t *RunnableTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var nextTime time.Time
	if t.Interval > 0 {
		if !t.lastRun.IsZero() {
			nextTime = t.lastRun.Add(t.Interval)
		} else {
			nextTime = t.registeredAt.Add(t.Interval)
		}
	}

	return TaskStatus{
		Name:       t.Name,
		Running:    t.running,
		Runs:       t.runs,
		LastRun:    t.lastRun,
		LastResult: t.lastResult,
		NextRun:    nextTime,
	}
}
