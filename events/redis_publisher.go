package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/pipeflow/types"
)

// RedisPublisher delivers events as JSON over Redis pub/sub channels.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher wraps an already-connected client. The caller owns
// the client lifecycle unless Close is used.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger.With(zap.String("component", "redis_publisher")),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return types.Errorf(types.ErrPublishFailed, "publish to %s", topic).
			WithCause(err).WithRetryable(true)
	}
	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", event.Type),
		zap.String("execution_id", event.ExecutionID))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
