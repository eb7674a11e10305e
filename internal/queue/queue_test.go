package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, Message{ID: "1", Type: "a", Body: json.RawMessage(`{}`)}))
	require.NoError(t, q.Publish(ctx, Message{ID: "2", Type: "b", Body: json.RawMessage(`{}`)}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", (<-msgs).ID)
	assert.Equal(t, "2", (<-msgs).ID)
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{ID: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{ID: "blocked"}), context.DeadlineExceeded)
}

func TestRedisConsumeStopsDuringBackoff(t *testing.T) {
	// Nothing listens on port 1, so every pop fails straight away.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	q := NewRedisQueue(client, "test:jobs", slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok, "consumer closes its channel")
	case <-time.After(2 * time.Second):
		t.Fatal("consumer kept sleeping after cancellation")
	}
}
