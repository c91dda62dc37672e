package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	msg := Message{Type: "blob.delete", Body: []byte(`{"key":"a|b.jpg"}`)}
	assert.Equal(t, msg, Decode(Encode(msg)))

	assert.Equal(t, Message{Body: []byte("raw")}, Decode("raw"))
	assert.Equal(t, Message{Type: "t", Body: []byte("")}, Decode("t|"))
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(2)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte("1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b", Body: []byte("2")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", (<-msgs).Type)
	assert.Equal(t, "b", (<-msgs).Type)

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishBlocksUntilCanceled(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}
