package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/errors"
)

func waitForDone(t *testing.T, m *Manager, id string) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task := m.Get(id)
		require.NotNil(t, task)
		task.mu.Lock()
		done := task.done
		task.mu.Unlock()
		if done {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return nil
}

func TestManager_RunCompletes(t *testing.T) {
	m := NewManager()

	id := m.Run("sync", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		progress(0.5, "halfway")
		return map[string]int{"installed": 3}, nil
	})
	assert.Equal(t, "task-1", id)

	task := waitForDone(t, m, id)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, float64(1), task.Percent)
	assert.Equal(t, map[string]int{"installed": 3}, task.Result)
	assert.Empty(t, task.Error)
}

func TestManager_RunFails(t *testing.T) {
	m := NewManager()

	id := m.Run("deploy", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return nil, errors.New(errors.ErrTargetMissing, "no game directory")
	})

	task := waitForDone(t, m, id)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Error, "no game directory")
}

func TestManager_ListOrderedBySequence(t *testing.T) {
	m := NewManager()

	block := make(chan struct{})
	for i := 0; i < 3; i++ {
		m.Run("op", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
			<-block
			return nil, nil
		})
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "task-1", list[0].ID)
	assert.Equal(t, "task-2", list[1].ID)
	assert.Equal(t, "task-3", list[2].ID)
	close(block)
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.Get("task-99"))
}

func TestTask_SubscribeStreamsEvents(t *testing.T) {
	m := NewManager()

	started := make(chan struct{})
	release := make(chan struct{})
	id := m.Run("sync", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		close(started)
		<-release
		progress(0.4, "downloading")
		return "done", nil
	})
	<-started

	ch, cancel := m.Get(id).Subscribe()
	defer cancel()
	close(release)

	var kinds []string
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, "completed", kinds[len(kinds)-1])
	assert.Contains(t, kinds, "progress")
}

func TestTask_SubscribeAfterFinish(t *testing.T) {
	m := NewManager()
	id := m.Run("sync", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		return 42, nil
	})
	waitForDone(t, m, id)

	ch, cancel := m.Get(id).Subscribe()
	defer cancel()

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "completed", ev.Kind)
	assert.Equal(t, 42, ev.Result)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after the terminal event")
}

func TestTask_CancelSubscription(t *testing.T) {
	m := NewManager()

	release := make(chan struct{})
	id := m.Run("sync", func(ctx context.Context, progress func(float64, string)) (interface{}, error) {
		<-release
		return nil, nil
	})

	task := m.Get(id)
	ch, cancel := task.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	close(release)
	waitForDone(t, m, id)
}
