package notifier

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/ws"
)

// RedisNotifier publishes events on a Redis channel so every running
// instance can fan them out to its own websocket clients.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event storage.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorf("marshal notification: %v", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		zap.S().Warnf("publish notification to redis: %v", err)
	}
}

// RunBridge subscribes to the Redis channel and forwards every event to
// the local hub. Blocks until the context is cancelled.
func RunBridge(ctx context.Context, client *redis.Client, channel string, hub *ws.Hub) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event storage.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				zap.S().Warnf("discarding malformed notification: %v", err)
				continue
			}
			hub.Broadcast(event)
		}
	}
}
