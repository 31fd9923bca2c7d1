// Package tasks runs long operations in the background and streams
// their progress to any number of subscribers. The web dashboard uses
// it to drive server-sent events; the manager itself knows nothing
// about HTTP.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modstage/modstage/pkg/logging"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one progress update streamed to subscribers.
type Event struct {
	Kind    string      `json:"kind"`
	Percent float64     `json:"percent,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Task is one tracked operation.
type Task struct {
	ID        string      `json:"id"`
	Operation string      `json:"operation"`
	Status    Status      `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	Percent   float64     `json:"percent"`
	Message   string      `json:"message,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`

	mu   sync.Mutex
	subs []chan Event
	done bool
}

// Manager tracks running and finished tasks.
type Manager struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*Task
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*Task)}
}

// Run starts fn in a goroutine under a fresh task and returns the task
// id. fn reports progress through the given callback and returns a
// result value or an error; both end the task and close its streams.
func (m *Manager) Run(operation string, fn func(ctx context.Context, progress func(pct float64, msg string)) (interface{}, error)) string {
	logger := logging.GetLogger("tasks")

	m.mu.Lock()
	m.seq++
	task := &Task{
		ID:        fmt.Sprintf("task-%d", m.seq),
		Operation: operation,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
	m.tasks[task.ID] = task
	m.mu.Unlock()

	go func() {
		task.update(StatusRunning, 0, "started")

		result, err := fn(context.Background(), func(pct float64, msg string) {
			task.progress(pct, msg)
		})
		if err != nil {
			logger.Error().Err(err).Str("task", task.ID).Str("op", operation).Msg("Task failed")
			task.finish(StatusFailed, nil, err.Error())
			return
		}
		task.finish(StatusCompleted, result, "")
	}()

	return task.ID
}

// Get returns a task by id, or nil.
func (m *Manager) Get(id string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

// List returns all tasks, newest last.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for i := 1; i <= m.seq; i++ {
		if t, ok := m.tasks[fmt.Sprintf("task-%d", i)]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Subscribe returns a channel of events for the task. A finished task
// yields one terminal event and a closed channel. The returned cancel
// func must be called when the subscriber goes away.
func (t *Task) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	t.mu.Lock()
	if t.done {
		ch <- t.terminalEvent()
		close(ch)
		t.mu.Unlock()
		return ch, func() {}
	}
	t.subs = append(t.subs, ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.subs {
			if sub == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (t *Task) update(status Status, pct float64, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.Percent = pct
	t.Message = msg
	t.broadcast(Event{Kind: "status", Percent: pct, Message: msg})
}

func (t *Task) progress(pct float64, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Percent = pct
	t.Message = msg
	t.broadcast(Event{Kind: "progress", Percent: pct, Message: msg})
}

func (t *Task) finish(status Status, result interface{}, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.Result = result
	t.Error = errMsg
	if status == StatusCompleted {
		t.Percent = 1
	}
	t.done = true
	t.broadcast(t.terminalEvent())
	for _, sub := range t.subs {
		close(sub)
	}
	t.subs = nil
}

func (t *Task) terminalEvent() Event {
	if t.Status == StatusFailed {
		return Event{Kind: "failed", Error: t.Error}
	}
	return Event{Kind: "completed", Percent: 1, Result: t.Result}
}

// broadcast delivers without blocking; a slow subscriber drops events
// rather than stalling the operation. Caller holds t.mu.
func (t *Task) broadcast(ev Event) {
	for _, sub := range t.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
