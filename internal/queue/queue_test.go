package queue

import (
	"context"
	"testing"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id string, keys ...models.RecordKey) *Task {
	if len(keys) == 0 {
		keys = []models.RecordKey{1035}
	}
	return &Task{ID: id, Keys: keys}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Push(task("b")))
	require.NoError(t, q.Push(task("c")))
	assert.Equal(t, 3, q.Size())

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	}
	assert.Equal(t, 0, q.Size())
}

func TestInMemoryQueue_RejectsEmptyTask(t *testing.T) {
	q := NewInMemoryQueue()
	assert.ErrorIs(t, q.Push(&Task{ID: "x"}), ErrEmptyTask)
	assert.ErrorIs(t, q.Push(nil), ErrEmptyTask)
}

func TestInMemoryQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan *Task, 1)

	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(task("late")))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.ID)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestInMemoryQueue_PopContextCancelled(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(task("b")), ErrQueueClosed)

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInMemoryQueue_Remove(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Push(task("b")))

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.False(t, q.Remove("missing"))

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
}
