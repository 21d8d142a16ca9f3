package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "project.created", Body: []byte(`{"pid":"P1"}`)}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "project.created", msg.Type)
		assert.JSONEq(t, `{"pid":"P1"}`, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	for range msgs {
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}

func TestSerialize(t *testing.T) {
	msg := deserialize(serialize(Message{Type: "attendance.marked", Body: []byte(`{"note":"a|b"}`)}))
	assert.Equal(t, "attendance.marked", msg.Type)
	assert.Equal(t, `{"note":"a|b"}`, string(msg.Body))

	raw := deserialize("no-separator")
	assert.Empty(t, raw.Type)
	assert.Equal(t, "no-separator", string(raw.Body))
}
