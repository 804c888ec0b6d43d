package job

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Parallel()

	t.Run("enqueue and receive", func(t *testing.T) {
		t.Parallel()

		q := NewQueue(2)
		msg := Message{JobID: uuid.New()}
		require.NoError(t, q.Enqueue(msg))

		got := <-q.Chan()
		assert.Equal(t, msg, got)
	})

	t.Run("full queue rejects without blocking", func(t *testing.T) {
		t.Parallel()

		q := NewQueue(1)
		require.NoError(t, q.Enqueue(Message{JobID: uuid.New()}))

		err := q.Enqueue(Message{JobID: uuid.New()})
		assert.ErrorIs(t, err, ErrQueueFull)
	})

	t.Run("closed queue rejects", func(t *testing.T) {
		t.Parallel()

		q := NewQueue(1)
		q.Close()

		err := q.Enqueue(Message{JobID: uuid.New()})
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("close drains buffered messages", func(t *testing.T) {
		t.Parallel()

		q := NewQueue(2)
		first := Message{JobID: uuid.New()}
		require.NoError(t, q.Enqueue(first))
		q.Close()

		got, ok := <-q.Chan()
		require.True(t, ok)
		assert.Equal(t, first, got)

		_, ok = <-q.Chan()
		assert.False(t, ok)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		q := NewQueue(1)
		q.Close()
		q.Close()
	})
}
