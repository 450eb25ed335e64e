package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/pipeflow/types"
)

func setupRedisPublisher(t *testing.T) (*RedisPublisher, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPublisher(client, zaptest.NewLogger(t)), client
}

func TestRedisPublisherPayload(t *testing.T) {
	p, client := setupRedisPublisher(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "callbacks.test")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := NewEvent(TypeStepCompleted, "exec-42")
	event.StepID = "fetch"
	event.CorrelationID = "corr-1"
	event.Data = map[string]any{"status": "COMPLETED"}
	require.NoError(t, p.Publish(ctx, "callbacks.test", event))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, TypeStepCompleted, got.Type)
		assert.Equal(t, "exec-42", got.ExecutionID)
		assert.Equal(t, "fetch", got.StepID)
		assert.Equal(t, "corr-1", got.CorrelationID)
		assert.Equal(t, "COMPLETED", got.Data["status"])

		ts, err := time.Parse(time.RFC3339, got.Timestamp)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), ts, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisPublisherConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPublisher(client, zaptest.NewLogger(t))
	mr.Close()

	err := p.Publish(context.Background(), "t", NewEvent(TypeStepFailed, "e"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrPublishFailed))
	assert.True(t, types.IsRetryable(err))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "t", Event{}))
	assert.NoError(t, p.Close())
}
