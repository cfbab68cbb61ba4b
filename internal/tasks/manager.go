// Package tasks runs periodic maintenance jobs until their context ends.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultTimeout = time.Minute

type Manager struct {
	ctx   context.Context
	wg    sync.WaitGroup
	tasks sync.Map
}

// NewManager creates a manager whose schedulers stop when ctx ends.
func NewManager(ctx context.Context) *Manager {
	return &Manager{ctx: ctx}
}

// Register adds a task. A positive interval runs it periodically.
func (m *Manager) Register(name string, interval time.Duration, fn TaskFunc) {
	task := &RunnableTask{
		Name:         name,
		Interval:     interval,
		Timeout:      DefaultTimeout,
		Handler:      fn,
		registeredAt: time.Now(),
	}
	m.tasks.Store(name, task)

	if interval > 0 {
		m.wg.Add(1)
		go m.scheduler(task)
	}
}

// Trigger runs a task now and waits for it.
func (m *Manager) Trigger(name string) error {
	t, ok := m.tasks.Load(name)
	if !ok {
		return TaskNotFoundError{Name: name}
	}
	t.(*RunnableTask).Run(m.ctx)
	return nil
}

func (m *Manager) ListStatus() []TaskStatus {
	var list []TaskStatus
	m.tasks.Range(func(_, value any) bool {
		list = append(list, value.(*RunnableTask).Status())
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Wait blocks until every scheduler stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) scheduler(task *RunnableTask) {
	defer m.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			task.Run(m.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}
